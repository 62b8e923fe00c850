// Package config provides configuration loading for orchestrd.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// Config is the full orchestrd configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Session   SessionConfig   `koanf:"session"`
	Workflow  WorkflowConfig  `koanf:"workflow"`
	Monitor   MonitorConfig   `koanf:"monitor"`
	Events    EventsConfig    `koanf:"events"`
	Snapshot  SnapshotConfig  `koanf:"snapshot"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig controls the optional HTTP sidecar that serves health and
// metrics endpoints alongside the stdio MCP transport.
type ServerConfig struct {
	HTTPEnabled bool   `koanf:"http_enabled"`
	HTTPAddr    string `koanf:"http_addr"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`
	// Format is json or console.
	Format string `koanf:"format"`
}

// SessionConfig controls session lifetime management.
type SessionConfig struct {
	IdleTimeoutMinutes int `koanf:"idle_timeout_minutes"`
	CleanupMaxAgeHours int `koanf:"cleanup_max_age_hours"`
}

// WorkflowConfig controls workflow construction.
type WorkflowConfig struct {
	MaxSteps           int `koanf:"max_steps"`
	DefaultTaskMinutes int `koanf:"default_task_minutes"`
}

// MonitorConfig controls the auto-progression monitor.
type MonitorConfig struct {
	Enabled              bool `koanf:"enabled"`
	IntervalSeconds      int  `koanf:"interval_seconds"`
	IdleThresholdSeconds int  `koanf:"idle_threshold_seconds"`
}

// EventsConfig controls the NATS lifecycle event publisher.
type EventsConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
}

// SnapshotConfig controls state persistence.
type SnapshotConfig struct {
	// Path is the snapshot file location. Empty disables persistence.
	Path string `koanf:"path"`
}

// TelemetryConfig controls OTLP trace and metric export.
type TelemetryConfig struct {
	Enabled    bool    `koanf:"enabled"`
	Endpoint   string  `koanf:"endpoint"`
	Insecure   bool    `koanf:"insecure"`
	SampleRate float64 `koanf:"sample_rate"`
}

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_HTTP_ADDR, WORKFLOW_MAX_STEPS, etc.)
//  2. YAML config file (~/.config/orchestrd/config.yaml)
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty, the
// default path is used. A missing file is not an error; defaults apply.
//
// Files must live under ~/.config/orchestrd/ or /etc/orchestrd/, carry 0600
// or 0400 permissions, and stay under 1MB.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "orchestrd", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate via the descriptor to avoid a TOCTOU race.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Environment variables map to section.field_name by splitting on the
	// first underscore: WORKFLOW_MAX_STEPS -> workflow.max_steps.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// EnsureConfigDir creates ~/.config/orchestrd if it doesn't exist, with 0700
// permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "orchestrd")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}
	return nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q (expected debug, info, warn, or error)", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format %q (expected json or console)", c.Logging.Format)
	}

	if c.Session.IdleTimeoutMinutes <= 0 {
		return fmt.Errorf("session idle timeout must be positive, got %d", c.Session.IdleTimeoutMinutes)
	}
	if c.Session.CleanupMaxAgeHours <= 0 {
		return fmt.Errorf("session cleanup max age must be positive, got %d", c.Session.CleanupMaxAgeHours)
	}
	if c.Workflow.MaxSteps <= 0 {
		return fmt.Errorf("workflow max steps must be positive, got %d", c.Workflow.MaxSteps)
	}
	if c.Workflow.DefaultTaskMinutes <= 0 {
		return fmt.Errorf("workflow default task minutes must be positive, got %d", c.Workflow.DefaultTaskMinutes)
	}
	if c.Monitor.IntervalSeconds <= 0 {
		return fmt.Errorf("monitor interval must be positive, got %d", c.Monitor.IntervalSeconds)
	}
	if c.Monitor.IdleThresholdSeconds <= 0 {
		return fmt.Errorf("monitor idle threshold must be positive, got %d", c.Monitor.IdleThresholdSeconds)
	}
	if c.Server.HTTPEnabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server http_addr is required when http_enabled is true")
	}
	if c.Events.Enabled && c.Events.URL == "" {
		return fmt.Errorf("events url is required when events are enabled")
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("telemetry endpoint is required when telemetry is enabled")
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("telemetry sample rate must be in [0, 1], got %v", c.Telemetry.SampleRate)
		}
	}
	return nil
}

// validateConfigPath checks the path is inside an allowed directory, following
// symlinks. Paths that don't exist yet validate against the literal path.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "orchestrd"),
		"/etc/orchestrd",
	}
	for _, dir := range allowedDirs {
		if strings.HasPrefix(resolvedPath, dir) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/orchestrd/ or /etc/orchestrd/")
}

// validateConfigFileProperties checks permissions and size on an existing
// file, using FileInfo from an already-opened descriptor.
func validateConfigFileProperties(info os.FileInfo) error {
	// Windows has a different permission model; skip the check there.
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = ":9090"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Session.IdleTimeoutMinutes == 0 {
		cfg.Session.IdleTimeoutMinutes = 30
	}
	if cfg.Session.CleanupMaxAgeHours == 0 {
		cfg.Session.CleanupMaxAgeHours = 24
	}

	if cfg.Workflow.MaxSteps == 0 {
		cfg.Workflow.MaxSteps = 20
	}
	if cfg.Workflow.DefaultTaskMinutes == 0 {
		cfg.Workflow.DefaultTaskMinutes = 30
	}

	if cfg.Monitor.IntervalSeconds == 0 {
		cfg.Monitor.IntervalSeconds = 5
	}
	if cfg.Monitor.IdleThresholdSeconds == 0 {
		cfg.Monitor.IdleThresholdSeconds = 10
	}

	if cfg.Events.URL == "" {
		cfg.Events.URL = "nats://localhost:4222"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
}
