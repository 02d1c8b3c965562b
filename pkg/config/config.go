// Package config loads and watches the governd configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/microaidao/governance/pkg/domain"
)

// Config is the full governd configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Logging     LoggingConfig     `yaml:"logging"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	DAO         DAODefaults       `yaml:"dao"`
	Stakeholder StakeholderConfig `yaml:"stakeholder"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Listen       string        `yaml:"listen"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LedgerConfig selects and configures the ledger backend.
type LedgerConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`
	// DataDir holds the sqlite database; empty means in-memory sqlite.
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Text  bool   `yaml:"text"`
}

// TelemetryConfig configures the OTLP trace exporter.
type TelemetryConfig struct {
	ServiceName  string            `yaml:"service_name"`
	OTLPEndpoint string            `yaml:"otlp_endpoint"`
	Environment  string            `yaml:"environment"`
	Insecure     bool              `yaml:"insecure"`
	Headers      map[string]string `yaml:"headers"`
}

// RateLimitConfig bounds instruction submission rates per endpoint.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

// DAODefaults seed new DAOs created through this deployment.
type DAODefaults struct {
	InitialTreasury uint64                `yaml:"initial_treasury"`
	Compliance      domain.ComplianceInfo `yaml:"compliance"`
}

// StakeholderConfig configures the AI stakeholder voting client.
type StakeholderConfig struct {
	APIURL       string        `yaml:"api_url"`
	DAO          string        `yaml:"dao"`
	Voter        string        `yaml:"voter"`
	PollInterval time.Duration `yaml:"poll_interval"`
	// PolicyPath points to a Rego module overriding the built-in
	// evaluation policy.
	PolicyPath string `yaml:"policy_path"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen:       ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Ledger:  LedgerConfig{Backend: "memory"},
		Logging: LoggingConfig{Level: "info"},
		Telemetry: TelemetryConfig{
			ServiceName: "governd",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			BurstSize:         100,
		},
		DAO: DAODefaults{
			Compliance: domain.ComplianceInfo{
				Jurisdiction: "Wyoming",
				EntityType:   "DAO LLC",
			},
		},
		Stakeholder: StakeholderConfig{
			PollInterval: time.Minute,
		},
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Ledger.Backend {
	case "", "memory", "sqlite":
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.BurstSize < 0 {
		return fmt.Errorf("rate limit values must be non-negative")
	}
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen must be set")
	}
	return nil
}

// applyEnvOverrides lets deployments tweak a file-based config without
// editing the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GOVERND_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("GOVERND_LEDGER_BACKEND"); v != "" {
		cfg.Ledger.Backend = v
	}
	if v := os.Getenv("GOVERND_DATA_DIR"); v != "" {
		cfg.Ledger.DataDir = v
	}
	if v := os.Getenv("GOVERND_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GOVERND_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
}
