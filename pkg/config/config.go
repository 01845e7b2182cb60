// Package config loads the indexsync configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (INDEXSYNC_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures the static configuration of the indexsync tool.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Index tunes sync behavior
	Index IndexConfig `mapstructure:"index"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR
	Level string `mapstructure:"level"`

	// Format is the log output format: text, json
	Format string `mapstructure:"format"`

	// Output is where logs are written: stdout, stderr, or a file path
	Output string `mapstructure:"output"`
}

// MetricsConfig controls the Prometheus metrics registry.
type MetricsConfig struct {
	// Enabled turns metrics collection on
	Enabled bool `mapstructure:"enabled"`
}

// IndexConfig tunes the sync driver.
type IndexConfig struct {
	// RewriteMinLogBytes is the log distance past which an index rewrite
	// is hinted. Zero uses the built-in default.
	RewriteMinLogBytes uint32 `mapstructure:"rewrite_min_log_bytes"`

	// NoDirty disables dirty-flag bookkeeping.
	NoDirty bool `mapstructure:"no_dirty"`

	// DebugChecks runs the full-map integrity walk after every sync.
	DebugChecks bool `mapstructure:"debug_checks"`
}

// Load reads configuration from the optional file at path plus INDEXSYNC_*
// environment overrides, falling back to defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("index.rewrite_min_log_bytes", 0)
	v.SetDefault("index.no_dirty", false)
	v.SetDefault("index.debug_checks", false)

	v.SetEnvPrefix("INDEXSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field values that would otherwise fail deep inside the
// logger or sync driver.
func (c *Config) Validate() error {
	switch strings.ToUpper(c.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging.format %q", c.Logging.Format)
	}
	if c.Logging.Output == "" {
		return fmt.Errorf("logging.output must not be empty")
	}
	return nil
}
