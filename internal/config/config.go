// Package config loads daemon and CLI settings from a YAML file with
// ASSETSCHED_* environment overrides. Command-line flags override both.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/assetsched/internal/condition"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ASSETSCHED_"

// Config holds all settings. Durations are kept both as written and parsed;
// Validate reports unparseable ones.
type Config struct {
	Database string `yaml:"database"`
	Sensor   string `yaml:"sensor"`

	TickInterval    time.Duration `yaml:"-"`
	TickIntervalStr string        `yaml:"tick_interval"`

	Parallelism int `yaml:"parallelism"`

	// DefaultCondition applies to assets declaring neither a condition nor a
	// policy, in the condition syntax of definitions files. Empty disables it.
	DefaultCondition any `yaml:"default_condition"`

	RunTags map[string]string `yaml:"run_tags"`

	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsAddr    string `yaml:"metrics_addr"`
	MetricsPath    string `yaml:"metrics_path"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Database:        "assetsched.db",
		Sensor:          "default_automation_sensor",
		TickInterval:    30 * time.Second,
		TickIntervalStr: "30s",
		Parallelism:     4,
		MetricsAddr:     ":9090",
		MetricsPath:     "/metrics",
		LogLevel:        "info",
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path skips the file.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.Getenv)
}

// LoadWithEnv is Load with an injectable environment lookup.
func LoadWithEnv(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg, getenv)

	if d, err := time.ParseDuration(cfg.TickIntervalStr); err == nil {
		cfg.TickInterval = d
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	env := func(name string) string { return getenv(EnvPrefix + name) }

	if v := env("DATABASE"); v != "" {
		cfg.Database = v
	}
	if v := env("SENSOR"); v != "" {
		cfg.Sensor = v
	}
	if v := env("TICK_INTERVAL"); v != "" {
		cfg.TickIntervalStr = v
	}
	if v := env("PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Parallelism = n
		} else {
			slog.Warn("config: ignoring invalid parallelism", "value", v)
		}
	}
	if v := env("DEFAULT_CONDITION"); v != "" {
		cfg.DefaultCondition = v
	}
	if v := env("METRICS_ENABLED"); v != "" {
		cfg.MetricsEnabled = v == "true"
	}
	if v := env("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := env("METRICS_PATH"); v != "" {
		cfg.MetricsPath = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Condition decodes DefaultCondition. It returns nil when none is set.
func (c Config) Condition() (condition.Condition, error) {
	if c.DefaultCondition == nil || c.DefaultCondition == "" {
		return nil, nil
	}
	return condition.Decode(c.DefaultCondition)
}

// SlogLevel maps LogLevel to a slog level.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// ErrNoConfig is returned by Find when no config file exists.
var ErrNoConfig = errors.New("no config file found")

// Find returns the first existing file of candidates.
func Find(candidates ...string) (string, error) {
	for _, p := range candidates {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrNoConfig
}
