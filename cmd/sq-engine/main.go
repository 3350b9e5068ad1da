package main

import (
	"SentinelQoS/internal/config"
	"SentinelQoS/internal/logger"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/config.yaml"

var (
	rootCmd = &cobra.Command{
		Use:   "sq-engine",
		Short: "SentinelQoS two-stage flow classification engine",
		Long: `sq-engine classifies network flows with a fast first-stage classifier,
escalates uncertain flows to an LLM reasoner and maps categories to QoS markings.`,
		SilenceUsage: true,
	}
	configPath string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to the YAML configuration file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(classifyCmd)
}

// loadConfig reads the configuration file. A missing default file falls back
// to built-in defaults; an explicitly named file must exist.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg := config.Default()
		logger.InitFromConfig(cfg.Logging)
		logger.Log().Warnf("Config file %s not found, using defaults", configPath)
		return cfg, nil
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.InitFromConfig(cfg.Logging)
	logger.Log().Infof("Configuration loaded from %s", configPath)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
