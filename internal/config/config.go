// Package config loads Mission Control Core's configuration: the layered
// defaults -> YAML file -> environment variable overrides pattern the
// teacher codebase uses, producing a fully validated Config.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/nexus/internal/domain"
	"gopkg.in/yaml.v3"
)

// Config is the recognized option set from spec §6.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Mission  MissionConfig  `yaml:"mission"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// ServerConfig configures the transport front door (out of core scope per
// spec §1, but every complete service needs somewhere to bind).
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// MissionConfig carries the core's recognized tunables (spec §6).
type MissionConfig struct {
	MaxParallelMissions int `yaml:"max_parallel_missions"`
	MaxIterations       int `yaml:"max_iterations"`
	SubscriptionBuffer  int `yaml:"subscription_buffer"`
	StallWarnSeconds    int `yaml:"stall_warn_seconds"`
	StallSevereSeconds  int `yaml:"stall_severe_seconds"`
	EventPageLimit      int `yaml:"event_page_limit"`
	KeepaliveSeconds    int `yaml:"keepalive_seconds"`
}

// StorageConfig selects and configures the Event Store backend.
type StorageConfig struct {
	// Driver is "memory", "postgres", or "sqlite".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LoggingConfig mirrors observability.LogConfig's recognized fields.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig configures the OpenTelemetry OTLP exporter.
type TracingConfig struct {
	Enabled        bool   `yaml:"enabled"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	ServiceName    string `yaml:"service_name"`
}

// Default returns the spec §6 defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{Host: "0.0.0.0", HTTPPort: 8080, MetricsPort: 9090},
		Mission: MissionConfig{
			MaxParallelMissions: 3,
			MaxIterations:       50,
			SubscriptionBuffer:  256,
			StallWarnSeconds:    60,
			StallSevereSeconds:  180,
			EventPageLimit:      1000,
			KeepaliveSeconds:    15,
		},
		Storage: StorageConfig{Driver: "memory"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Tracing: TracingConfig{ServiceName: "missionctl"},
	}
}

// Load builds a Config by layering a YAML file (if path is non-empty) over
// Default(), then applying environment variable overrides, then validating.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("MISSIONCTL_HOST")); v != "" {
		cfg.Server.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("MISSIONCTL_HTTP_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.HTTPPort = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MISSIONCTL_MAX_PARALLEL_MISSIONS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Mission.MaxParallelMissions = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MISSIONCTL_MAX_ITERATIONS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Mission.MaxIterations = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MISSIONCTL_STORAGE_DRIVER")); v != "" {
		cfg.Storage.Driver = v
	}
	if v := strings.TrimSpace(os.Getenv("MISSIONCTL_STORAGE_DSN")); v != "" {
		cfg.Storage.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("MISSIONCTL_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate returns a *domain.Error{Kind: Protocol} on any recognized option
// outside its valid range. The teacher repo has no struct-tag validator
// dependency (e.g. go-playground/validator) in its go.mod, so validation
// here is plain Go, matching its style (see DESIGN.md).
func (c Config) Validate() error {
	if c.Mission.MaxParallelMissions < 0 {
		return domain.NewError(domain.ErrProtocol, "mission.max_parallel_missions must be >= 0")
	}
	if c.Mission.MaxIterations <= 0 {
		return domain.NewError(domain.ErrProtocol, "mission.max_iterations must be > 0")
	}
	if c.Mission.SubscriptionBuffer <= 0 {
		return domain.NewError(domain.ErrProtocol, "mission.subscription_buffer must be > 0")
	}
	if c.Mission.EventPageLimit <= 0 || c.Mission.EventPageLimit > 5000 {
		return domain.NewError(domain.ErrProtocol, "mission.event_page_limit must be in (0, 5000]")
	}
	if c.Mission.StallWarnSeconds <= 0 || c.Mission.StallSevereSeconds <= c.Mission.StallWarnSeconds {
		return domain.NewError(domain.ErrProtocol, "mission.stall_severe_seconds must be greater than stall_warn_seconds")
	}
	switch c.Storage.Driver {
	case "memory", "postgres", "sqlite":
	default:
		return domain.NewError(domain.ErrProtocol, "storage.driver must be one of memory, postgres, sqlite")
	}
	return nil
}

// StallWarn returns the configured stall-warn threshold as a Duration.
func (c Config) StallWarn() time.Duration {
	return time.Duration(c.Mission.StallWarnSeconds) * time.Second
}

// StallSevere returns the configured stall-severe threshold as a Duration.
func (c Config) StallSevere() time.Duration {
	return time.Duration(c.Mission.StallSevereSeconds) * time.Second
}

// Keepalive returns the configured subscription keepalive interval.
func (c Config) Keepalive() time.Duration {
	return time.Duration(c.Mission.KeepaliveSeconds) * time.Second
}
