package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig holds the decision orchestrator settings.
type EngineConfig struct {
	// AcceptThreshold is the Sentry confidence at or above which a decision is accepted without escalation.
	AcceptThreshold float64 `yaml:"accept_threshold"`
	// MaxInflightEscalations bounds the number of concurrent Vanguard calls.
	MaxInflightEscalations int `yaml:"max_inflight_escalations"`
	ActivityLogSize        int `yaml:"activity_log_size"`
}

// SentryConfig configures the first-stage classifier.
type SentryConfig struct {
	ModelPath  string `yaml:"model_path"`
	WatchModel bool   `yaml:"watch_model"`
	// FallbackMode is "unknown" (default) or "random".
	FallbackMode string `yaml:"fallback_mode"`
}

// VanguardConfig configures the second-stage reasoner.
type VanguardConfig struct {
	Enabled bool     `yaml:"enabled"`
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"api_key"`
	Models  []string `yaml:"models"`
	Timeout string   `yaml:"timeout"`
	// SimulationMode is "unknown" (default) or "random".
	SimulationMode string `yaml:"simulation_mode"`
	HealthInterval string `yaml:"health_interval"`
}

// PoliciesConfig points at an optional seed table for the policy catalog.
type PoliciesConfig struct {
	SeedFile string `yaml:"seed_file"`
}

// EnforcementConfig configures the marking dispatcher.
type EnforcementConfig struct {
	QueueSize      int    `yaml:"queue_size"`
	NumWorkers     int    `yaml:"num_workers"`
	ApplyTimeout   string `yaml:"apply_timeout"`
	PublishToNATS  bool   `yaml:"publish_to_nats"`
	MarkingSubject string `yaml:"marking_subject"`
}

// NATSConfig holds the message bus connection settings.
type NATSConfig struct {
	URL         string `yaml:"url"`
	FlowSubject string `yaml:"flow_subject"`
	Ingest      bool   `yaml:"ingest"`
	NumWorkers  int    `yaml:"num_workers"`
	BufferSize  int    `yaml:"buffer_size"`
}

// APIConfig holds the listen addresses and admin credentials.
type APIConfig struct {
	HTTPListenAddr string `yaml:"http_listen_addr"`
	GRPCListenAddr string `yaml:"grpc_listen_addr"`
	AdminUser      string `yaml:"admin_user"`
	AdminPass      string `yaml:"admin_pass"`
}

// SimulatorConfig configures the background demo traffic generator.
type SimulatorConfig struct {
	Enabled     bool   `yaml:"enabled"`
	MinInterval string `yaml:"min_interval"`
	MaxInterval string `yaml:"max_interval"`
}

// ClickHouseConfig holds the connection details for the investigation export.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// AuditConfig configures the periodic investigation export. Investigations go
// to ClickHouse when it is enabled and to JSON files under Dir when Dir is set.
type AuditConfig struct {
	Interval string `yaml:"interval"`
	Dir      string `yaml:"dir"`
}

// SMTPConfig holds the mail relay used to notify operators of new suggestions.
// An empty Host disables notifications.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	// To is a comma-separated recipient list.
	To string `yaml:"to"`
}

// LoggingConfig controls log level, format and optional rotated file output.
type LoggingConfig struct {
	Debug      bool   `yaml:"debug"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Engine      EngineConfig      `yaml:"engine"`
	Sentry      SentryConfig      `yaml:"sentry"`
	Vanguard    VanguardConfig    `yaml:"vanguard"`
	Policies    PoliciesConfig    `yaml:"policies"`
	Enforcement EnforcementConfig `yaml:"enforcement"`
	NATS        NATSConfig        `yaml:"nats"`
	API         APIConfig         `yaml:"api"`
	Simulator   SimulatorConfig   `yaml:"simulator"`
	ClickHouse  ClickHouseConfig  `yaml:"clickhouse"`
	Audit       AuditConfig       `yaml:"audit"`
	SMTP        SMTPConfig        `yaml:"smtp"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Default returns a configuration that runs the engine with no external services.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			AcceptThreshold:        0.95,
			MaxInflightEscalations: 4,
			ActivityLogSize:        200,
		},
		Sentry: SentryConfig{
			ModelPath:    "sentry_model.json",
			FallbackMode: "unknown",
		},
		Vanguard: VanguardConfig{
			Enabled:        true,
			Models:         []string{"gemma:2b", "gemma2:2b", "mistral"},
			Timeout:        "45s",
			SimulationMode: "unknown",
			HealthInterval: "30s",
		},
		Enforcement: EnforcementConfig{
			QueueSize:      256,
			NumWorkers:     2,
			ApplyTimeout:   "5s",
			MarkingSubject: "sentinel.markings",
		},
		NATS: NATSConfig{
			FlowSubject: "sentinel.flows",
			NumWorkers:  4,
			BufferSize:  1024,
		},
		API: APIConfig{
			HTTPListenAddr: ":8000",
			GRPCListenAddr: ":50051",
			AdminUser:      "admin",
			AdminPass:      "admin",
		},
		Simulator: SimulatorConfig{
			Enabled:     true,
			MinInterval: "2s",
			MaxInterval: "5s",
		},
		ClickHouse: ClickHouseConfig{
			Host:     "localhost",
			Port:     9000,
			Database: "default",
		},
		Audit: AuditConfig{
			Interval: "30s",
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
		Logging: LoggingConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
// Keys missing from the file keep their default values.
func LoadConfig(filePath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SENTINEL_ADMIN_USER"); v != "" {
		c.API.AdminUser = v
	}
	if v := os.Getenv("SENTINEL_ADMIN_PASS"); v != "" {
		c.API.AdminPass = v
	}
	if v := os.Getenv("SENTINEL_LLM_API_KEY"); v != "" {
		c.Vanguard.APIKey = v
	}
	if v := os.Getenv("SENTINEL_SMTP_PASS"); v != "" {
		c.SMTP.Password = v
	}
}

// Validate checks value ranges and that every duration string parses.
func (c *Config) Validate() error {
	if c.Engine.AcceptThreshold < 0 || c.Engine.AcceptThreshold > 1 {
		return fmt.Errorf("engine.accept_threshold must be within [0,1], got %v", c.Engine.AcceptThreshold)
	}
	if c.Engine.MaxInflightEscalations <= 0 {
		return fmt.Errorf("engine.max_inflight_escalations must be positive")
	}
	if c.Enforcement.QueueSize <= 0 || c.Enforcement.NumWorkers <= 0 {
		return fmt.Errorf("enforcement.queue_size and enforcement.num_workers must be positive")
	}
	for name, value := range map[string]string{
		"vanguard.timeout":          c.Vanguard.Timeout,
		"vanguard.health_interval":  c.Vanguard.HealthInterval,
		"enforcement.apply_timeout": c.Enforcement.ApplyTimeout,
		"simulator.min_interval":    c.Simulator.MinInterval,
		"simulator.max_interval":    c.Simulator.MaxInterval,
		"audit.interval":            c.Audit.Interval,
	} {
		if _, err := ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if c.SMTP.Host != "" && (c.SMTP.From == "" || c.SMTP.To == "") {
		return fmt.Errorf("smtp.from and smtp.to are required when smtp.host is set")
	}
	minI, _ := ParseDuration(c.Simulator.MinInterval)
	maxI, _ := ParseDuration(c.Simulator.MaxInterval)
	if minI > maxI {
		return fmt.Errorf("simulator.min_interval (%s) exceeds simulator.max_interval (%s)", minI, maxI)
	}
	return nil
}

// ParseDuration parses a positive duration string.
func ParseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", s)
	}
	return d, nil
}

// MustDuration parses a duration that Validate has already accepted.
func MustDuration(s string) time.Duration {
	d, err := ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("config: unvalidated duration %q: %v", s, err))
	}
	return d
}
