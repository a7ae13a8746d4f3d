package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetsched/internal/condition"
)

func noEnv(string) string { return "" }

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assetsched.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadWithEnv("", noEnv)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, Validate(cfg))
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
database: /var/lib/assetsched/state.db
sensor: nightly
tick_interval: 1m
parallelism: 8
default_condition: eager
run_tags:
  team: data
metrics_enabled: true
log_level: debug
`)
	cfg, err := LoadWithEnv(path, noEnv)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/assetsched/state.db", cfg.Database)
	assert.Equal(t, "nightly", cfg.Sensor)
	assert.Equal(t, time.Minute, cfg.TickInterval)
	assert.Equal(t, 8, cfg.Parallelism)
	assert.Equal(t, map[string]string{"team": "data"}, cfg.RunTags)
	assert.Equal(t, "/metrics", cfg.MetricsPath, "unset fields keep defaults")
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())

	cond, err := cfg.Condition()
	require.NoError(t, err)
	assert.Equal(t, condition.String(condition.Eager()), condition.String(cond))
	assert.NoError(t, Validate(cfg))
}

func TestLoad_NestedDefaultCondition(t *testing.T) {
	path := writeConfig(t, `
default_condition:
  and:
    - missing
    - not: in_progress
`)
	cfg, err := LoadWithEnv(path, noEnv)
	require.NoError(t, err)
	cond, err := cfg.Condition()
	require.NoError(t, err)
	assert.Equal(t, "(missing & ~in_progress)", condition.String(cond))
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "database: file.db\ntick_interval: 1m\n")
	cfg, err := LoadWithEnv(path, envMap(map[string]string{
		"ASSETSCHED_DATABASE":        "env.db",
		"ASSETSCHED_TICK_INTERVAL":   "5s",
		"ASSETSCHED_PARALLELISM":     "2",
		"ASSETSCHED_METRICS_ENABLED": "true",
		"ASSETSCHED_LOG_LEVEL":       "warn",
	}))
	require.NoError(t, err)

	assert.Equal(t, "env.db", cfg.Database)
	assert.Equal(t, 5*time.Second, cfg.TickInterval)
	assert.Equal(t, 2, cfg.Parallelism)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, slog.LevelWarn, cfg.SlogLevel())
}

func TestLoad_InvalidParallelismEnvIgnored(t *testing.T) {
	cfg, err := LoadWithEnv("", envMap(map[string]string{"ASSETSCHED_PARALLELISM": "many"}))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Parallelism)
}

func TestLoad_Errors(t *testing.T) {
	_, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.yaml"), noEnv)
	assert.ErrorContains(t, err, "read config")

	path := writeConfig(t, "database: [unclosed\n")
	_, err = LoadWithEnv(path, noEnv)
	assert.ErrorContains(t, err, "parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty database", func(c *Config) { c.Database = "" }, "database"},
		{"empty sensor", func(c *Config) { c.Sensor = "" }, "sensor"},
		{"bad interval", func(c *Config) { c.TickIntervalStr = "soon" }, "tick_interval"},
		{"negative interval", func(c *Config) { c.TickIntervalStr = "-1s" }, "tick_interval"},
		{"zero parallelism", func(c *Config) { c.Parallelism = 0 }, "parallelism"},
		{"bad condition", func(c *Config) { c.DefaultCondition = "sometimes" }, "default_condition"},
		{"reserved tag", func(c *Config) { c.RunTags = map[string]string{"assetsched/backfill": "x"} }, "run_tags"},
		{"metrics path", func(c *Config) { c.MetricsEnabled = true; c.MetricsPath = "metrics" }, "metrics_path"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := Validate(cfg)
			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs), "want ValidationErrors, got %v", err)
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestValidationErrors_Message(t *testing.T) {
	errs := ValidationErrors{
		{Field: "database", Message: "required"},
		{Field: "sensor", Message: "required"},
	}
	assert.Equal(t, "2 validation errors:\n  - database: required\n  - sensor: required", errs.Error())
	assert.Equal(t, "database: required", errs[:1].Error())
}

func TestFind(t *testing.T) {
	path := writeConfig(t, "sensor: x\n")
	got, err := Find("", filepath.Join(t.TempDir(), "nope.yaml"), path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = Find("nope.yaml")
	assert.ErrorIs(t, err, ErrNoConfig)
}
