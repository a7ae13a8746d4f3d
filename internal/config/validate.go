package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/assetsched/internal/runrequest"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	if cfg.Database == "" {
		errs = append(errs, ValidationError{Field: "database", Message: "required"})
	}
	if cfg.Sensor == "" {
		errs = append(errs, ValidationError{Field: "sensor", Message: "required"})
	}

	d, err := time.ParseDuration(cfg.TickIntervalStr)
	switch {
	case err != nil:
		errs = append(errs, ValidationError{Field: "tick_interval", Message: fmt.Sprintf("invalid duration: %v", err)})
	case d <= 0:
		errs = append(errs, ValidationError{Field: "tick_interval", Message: "must be positive"})
	}

	if cfg.Parallelism <= 0 {
		errs = append(errs, ValidationError{Field: "parallelism", Message: "must be positive"})
	}

	if _, err := cfg.Condition(); err != nil {
		errs = append(errs, ValidationError{Field: "default_condition", Message: err.Error()})
	}

	if err := runrequest.ValidateTags(cfg.RunTags); err != nil {
		errs = append(errs, ValidationError{Field: "run_tags", Message: err.Error()})
	}

	if cfg.MetricsEnabled && !strings.HasPrefix(cfg.MetricsPath, "/") {
		errs = append(errs, ValidationError{Field: "metrics_path", Message: fmt.Sprintf("must start with '/', got %q", cfg.MetricsPath)})
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{Field: "log_level", Message: fmt.Sprintf("must be debug, info, warn or error, got %q", cfg.LogLevel)})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
