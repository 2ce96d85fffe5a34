// Package config loads hive configuration via viper: programmatic defaults,
// an optional YAML config file, and HIVE_-prefixed environment overrides.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete hive configuration.
type Config struct {
	// Root is the store root directory holding sessions/, projects/,
	// queue/, and logs/.
	Root   string       `mapstructure:"root"`
	Lock   LockConfig   `mapstructure:"lock"`
	Log    LogConfig    `mapstructure:"log"`
	Events EventsConfig `mapstructure:"events"`
	TTL    TTLConfig    `mapstructure:"ttl"`
}

// LockConfig controls per-document advisory lock acquisition.
type LockConfig struct {
	// Timeout bounds how long a mutator waits for a contended lock.
	Timeout time.Duration `mapstructure:"timeout"`
	// RetryInterval is the polling interval while waiting.
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// LogConfig controls the structured log written under <root>/logs/.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
	// MaxSizeMB rotates the log file when it exceeds this size.
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is how many rotated files to keep.
	MaxBackups int `mapstructure:"max_backups"`
}

// EventsConfig controls event log behavior.
type EventsConfig struct {
	// InlineTail bounds the observability.events tail mirrored into each
	// session document. Zero disables mirroring.
	InlineTail int `mapstructure:"inline_tail"`
}

// TTLConfig carries per-mode TTL overrides. A zero value means the mode's
// built-in default applies.
type TTLConfig struct {
	Development time.Duration `mapstructure:"development"`
	Leadership  time.Duration `mapstructure:"leadership"`
	Sprint      time.Duration `mapstructure:"sprint"`
	Config      time.Duration `mapstructure:"config"`
	Emergency   time.Duration `mapstructure:"emergency"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Root: defaultRoot(),
		Lock: LockConfig{
			Timeout:       5 * time.Second,
			RetryInterval: 25 * time.Millisecond,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Events: EventsConfig{
			InlineTail: 20,
		},
	}
}

func defaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hive"
	}
	return filepath.Join(home, ".hive")
}

// SetDefaults registers default values with viper.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("root", defaults.Root)

	viper.SetDefault("lock.timeout", defaults.Lock.Timeout)
	viper.SetDefault("lock.retry_interval", defaults.Lock.RetryInterval)

	viper.SetDefault("log.level", defaults.Log.Level)
	viper.SetDefault("log.max_size_mb", defaults.Log.MaxSizeMB)
	viper.SetDefault("log.max_backups", defaults.Log.MaxBackups)

	viper.SetDefault("events.inline_tail", defaults.Events.InlineTail)

	viper.SetDefault("ttl.development", time.Duration(0))
	viper.SetDefault("ttl.leadership", time.Duration(0))
	viper.SetDefault("ttl.sprint", time.Duration(0))
	viper.SetDefault("ttl.config", time.Duration(0))
	viper.SetDefault("ttl.emergency", time.Duration(0))
}

// Load reads the configuration from viper into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when
// loading fails.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "hive")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hive"
	}
	return filepath.Join(home, ".config", "hive")
}

// ConfigFile returns the path to the config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// TTLOverrides returns the non-zero per-mode TTL overrides keyed by mode
// name.
func (c *Config) TTLOverrides() map[string]time.Duration {
	overrides := make(map[string]time.Duration)
	for mode, d := range map[string]time.Duration{
		"development": c.TTL.Development,
		"leadership":  c.TTL.Leadership,
		"sprint":      c.TTL.Sprint,
		"config":      c.TTL.Config,
		"emergency":   c.TTL.Emergency,
	} {
		if d > 0 {
			overrides[mode] = d
		}
	}
	return overrides
}
