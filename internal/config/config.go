// Package config loads engine configuration for cadence. Configuration is
// read from ~/.cadence/config.yaml (created with defaults on first run) and
// can be overridden by CADENCE_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/normanking/cadence/internal/consolidate"
)

// Config holds all engine configuration.
type Config struct {
	Storage       StorageConfig       `mapstructure:"storage" yaml:"storage"`
	Consolidation ConsolidationConfig `mapstructure:"consolidation" yaml:"consolidation"`
	Patterns      PatternsConfig      `mapstructure:"patterns" yaml:"patterns"`
	Logging       LoggingConfig       `mapstructure:"logging" yaml:"logging"`
}

// StorageConfig selects and locates the persistence backend.
type StorageConfig struct {
	// Backend is "json" or "sqlite"
	Backend string `mapstructure:"backend" yaml:"backend"`
	// DataDir holds the JSON documents (and profile document)
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
	// DBPath is the SQLite database path when backend is sqlite
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// ConsolidationConfig tunes the consolidation service and retention policy.
type ConsolidationConfig struct {
	// IntervalHours between periodic consolidation runs
	IntervalHours int `mapstructure:"interval_hours" yaml:"interval_hours"`
	// RetentionDays before raw activity/interaction records may be pruned
	RetentionDays int `mapstructure:"retention_days" yaml:"retention_days"`
	// SummaryRetentionDays is the longer horizon for session history
	SummaryRetentionDays int `mapstructure:"summary_retention_days" yaml:"summary_retention_days"`
}

// ToConsolidateConfig converts to the consolidate package's config.
func (c ConsolidationConfig) ToConsolidateConfig() consolidate.Config {
	cfg := consolidate.DefaultConfig()
	if c.IntervalHours > 0 {
		cfg.Interval = time.Duration(c.IntervalHours) * time.Hour
	}
	if c.RetentionDays > 0 {
		cfg.RetentionDays = c.RetentionDays
	}
	if c.SummaryRetentionDays > 0 {
		cfg.SummaryRetentionDays = c.SummaryRetentionDays
	}
	return cfg
}

// PatternsConfig tunes pattern detection.
type PatternsConfig struct {
	// MinFrequency is the occurrence threshold for pattern detection
	MinFrequency int `mapstructure:"min_frequency" yaml:"min_frequency"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	// File is an optional log file path
	File string `mapstructure:"file" yaml:"file,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: "json",
			DataDir: "~/.cadence/data",
			DBPath:  "~/.cadence/cadence.db",
		},
		Consolidation: ConsolidationConfig{
			IntervalHours:        24,
			RetentionDays:        365,
			SummaryRetentionDays: 730,
		},
		Patterns: PatternsConfig{
			MinFrequency: 2,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from ~/.cadence/config.yaml.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home directory: %w", err)
	}
	return LoadFromPath(filepath.Join(homeDir, ".cadence", "config.yaml"))
}

// LoadFromPath reads configuration from path, creating it with defaults if
// missing, and merges CADENCE_* environment overrides.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Example: CADENCE_CONSOLIDATION_RETENTION_DAYS
	v.SetEnvPrefix("CADENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir)
	cfg.Storage.DBPath = expandPath(cfg.Storage.DBPath)
	cfg.Logging.File = expandPath(cfg.Logging.File)
	return &cfg, nil
}

// writeConfigFile serializes cfg to path as YAML.
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// expandPath expands a leading tilde to the user's home directory.
func expandPath(path string) string {
	if path == "" || !strings.HasPrefix(path, "~") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return homeDir
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~/"))
}
