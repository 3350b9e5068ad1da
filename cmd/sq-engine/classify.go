package main

import (
	"SentinelQoS/internal/model"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var (
	classifyCmd = &cobra.Command{
		Use:   "classify [features-json]",
		Short: "Classify one flow and print the decision as JSON",
		Long: `Runs a single decision through the full two-stage pipeline. The flow
features are read from the argument, or from stdin when no argument is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runClassify,
	}
	classifyIndent bool
)

func init() {
	classifyCmd.Flags().BoolVar(&classifyIndent, "pretty", false, "Indent the JSON output")
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// One-shot runs never generate background traffic or open servers.
	cfg.Simulator.Enabled = false

	var input io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		input = strings.NewReader(args[0])
	}
	var features model.FlowFeatures
	if err := json.NewDecoder(input).Decode(&features); err != nil {
		return fmt.Errorf("failed to decode flow features: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.close()

	e.dispatcher.Start()
	defer e.dispatcher.Stop()

	d, err := e.orchestrator.Decide(ctx, features)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if classifyIndent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(d)
}
