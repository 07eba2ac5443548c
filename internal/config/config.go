package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LogFormat selects the log handler
type LogFormat string

const (
	LogFormatText   LogFormat = "text"
	LogFormatJSON   LogFormat = "json"
	LogFormatPretty LogFormat = "pretty"
)

// Config represents the complete treesync configuration
type Config struct {
	Sync SyncConfig `yaml:"sync"`
	Lock LockConfig `yaml:"lock"`
	Log  LogConfig  `yaml:"log"`
}

// SyncConfig configures sync behavior
type SyncConfig struct {
	Exclude []string `yaml:"exclude"`
	Workers int      `yaml:"workers"`
	DryRun  bool     `yaml:"dry_run"`
}

// LockConfig configures the destination lock
type LockConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// LogConfig configures logging output
type LogConfig struct {
	Level  string    `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Default returns the configuration used when no config file exists
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadOptional behaves like Load but returns Default when path does not exist
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// expandEnv expands environment variables in path fields
func (c *Config) expandEnv() {
	c.Lock.Dir = os.ExpandEnv(c.Lock.Dir)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Sync.Workers == 0 {
		c.Sync.Workers = 1
	}
	if c.Lock.Enabled == nil {
		enabled := true
		c.Lock.Enabled = &enabled
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = LogFormatText
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync.workers must be at least 1, got %d", c.Sync.Workers)
	}

	if c.Lock.Dir != "" && !filepath.IsAbs(c.Lock.Dir) {
		return fmt.Errorf("lock.dir must be an absolute path: %s", c.Lock.Dir)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("invalid log.level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	switch c.Log.Format {
	case LogFormatText, LogFormatJSON, LogFormatPretty:
		// valid
	default:
		return fmt.Errorf("invalid log.format: %s (must be text, json, or pretty)", c.Log.Format)
	}

	return nil
}

// LockEnabled reports whether the destination lock should be taken
func (c *Config) LockEnabled() bool {
	return c.Lock.Enabled == nil || *c.Lock.Enabled
}

// DefaultPath returns $HOME/.config/treesync/config.yaml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".config", "treesync", "config.yaml"), nil
}
