// Package config loads inferd configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// INFERD_-prefixed environment variables. Domain sections reuse the Config
// types of the packages they configure.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/inferd/internal/events"
	"github.com/fyrsmithlabs/inferd/internal/experiment"
	"github.com/fyrsmithlabs/inferd/internal/exploration"
	"github.com/fyrsmithlabs/inferd/internal/logging"
	"github.com/fyrsmithlabs/inferd/internal/secrets"
	"github.com/fyrsmithlabs/inferd/internal/skill"
	"github.com/fyrsmithlabs/inferd/internal/telemetry"
	"github.com/fyrsmithlabs/inferd/internal/trust"
)

// Config holds the complete inferd configuration.
type Config struct {
	Server      ServerConfig       `koanf:"server"`
	Storage     StorageConfig      `koanf:"storage"`
	Logging     logging.Config     `koanf:"logging"`
	Telemetry   telemetry.Config   `koanf:"telemetry"`
	Belief      BeliefConfig       `koanf:"belief"`
	Experiment  experiment.Config  `koanf:"experiment"`
	Trust       trust.Config       `koanf:"trust"`
	Skill       skill.Config       `koanf:"skill"`
	Exploration exploration.Config `koanf:"exploration"`
	Secrets     secrets.Config     `koanf:"secrets"`
	Events      events.Config      `koanf:"events"`
	MCP         MCPConfig          `koanf:"mcp"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// RateLimit is the sustained requests per second per client; 0 disables
	// limiting.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
	// APIToken, when set, is required as a bearer token on /api routes.
	APIToken Secret `koanf:"api_token"`
}

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `koanf:"driver"`
	Path   string `koanf:"path"`
}

// BeliefConfig holds belief store settings.
type BeliefConfig struct {
	CredibleLevel   float64       `koanf:"credible_level"`
	MissionHalfLife time.Duration `koanf:"mission_half_life"`
	HistoryLimit    int           `koanf:"history_limit"`
}

// MCPConfig holds MCP server settings.
type MCPConfig struct {
	Name    string `koanf:"name"`
	Version string `koanf:"version"`
}

// Default returns the built-in configuration.
func Default() *Config {
	logCfg := logging.NewDefaultConfig()
	telCfg := telemetry.NewDefaultConfig()
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9191,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       50,
			RateBurst:       100,
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Path:   "~/.config/inferd/inferd.db",
		},
		Logging:   *logCfg,
		Telemetry: *telCfg,
		Belief: BeliefConfig{
			CredibleLevel:   0.95,
			MissionHalfLife: 30 * 24 * time.Hour,
			HistoryLimit:    50,
		},
		Experiment:  experiment.DefaultConfig(),
		Trust:       trust.DefaultConfig(),
		Skill:       skill.DefaultConfig(),
		Exploration: exploration.DefaultConfig(),
		Secrets:     secrets.DefaultConfig(),
		Events:      events.DefaultConfig(),
		MCP: MCPConfig{
			Name:    "inferd",
			Version: "0.1.0",
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.RateLimit < 0 {
		return errors.New("rate limit cannot be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		return errors.New("rate burst must be at least 1 when rate limiting")
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Path == "" {
			return errors.New("storage path required for sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Belief.CredibleLevel <= 0 || c.Belief.CredibleLevel >= 1 {
		return fmt.Errorf("credible level must be in (0,1), got %v", c.Belief.CredibleLevel)
	}
	if c.Belief.MissionHalfLife < 0 || c.Experiment.ObservationHalfLife < 0 || c.Experiment.TraitHalfLife < 0 {
		return errors.New("half-lives cannot be negative")
	}

	if c.Events.Enabled && c.Events.URL == "" {
		return errors.New("events url required when events are enabled")
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}
