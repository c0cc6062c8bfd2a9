package config

import (
	"fmt"
	"time"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// recognizedBackends is the set of valid automation backends.
var recognizedBackends = map[string]bool{
	"chromedp": true,
	"noop":     true,
}

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	s := cfg.Session

	if s.WebsiteCount < 1 {
		errs = append(errs, ValidationError{Field: "session.website_count", Message: "must be at least 1"})
	}
	if s.QualityThreshold < 0 || s.QualityThreshold > 10 {
		errs = append(errs, ValidationError{Field: "session.quality_threshold", Message: "must be within [0, 10]"})
	}
	if r := s.Retries(); r < 0 || r > 5 {
		errs = append(errs, ValidationError{Field: "session.max_retries", Message: "must be within [0, 5]"})
	}
	if s.BaseURL == "" {
		errs = append(errs, ValidationError{Field: "session.base_url", Message: "is required"})
	}

	for _, d := range []struct {
		field    string
		value    string
		positive bool
	}{
		{"session.timeout_per_website", s.TimeoutPerWebsite, true},
		{"execution.command_delay", cfg.Execution.CommandDelay, false},
		{"execution.retry_delay", cfg.Execution.RetryDelay, false},
		{"daemon.health_interval", cfg.Daemon.HealthInterval, true},
		{"daemon.session_interval", cfg.Daemon.SessionInterval, true},
	} {
		if d.value == "" {
			continue
		}
		dur, err := time.ParseDuration(d.value)
		switch {
		case err != nil:
			errs = append(errs, ValidationError{Field: d.field, Message: fmt.Sprintf("invalid duration %q", d.value)})
		case d.positive && dur <= 0:
			errs = append(errs, ValidationError{Field: d.field, Message: "must be positive"})
		case dur < 0:
			errs = append(errs, ValidationError{Field: d.field, Message: "must not be negative"})
		}
	}

	g := cfg.Generator
	if g.MinCommands < 1 {
		errs = append(errs, ValidationError{Field: "generator.min_commands", Message: "must be at least 1"})
	}
	if g.MaxCommands < g.MinCommands {
		errs = append(errs, ValidationError{Field: "generator.max_commands", Message: "must be >= min_commands"})
	}

	if a := cfg.Learning.ActivationThreshold; a < 0 || a > 1 {
		errs = append(errs, ValidationError{Field: "learning.activation_threshold", Message: "must be within [0, 1]"})
	}

	if cfg.Daemon.MaxConsecutiveErrors < 1 {
		errs = append(errs, ValidationError{Field: "daemon.max_consecutive_errors", Message: "must be at least 1"})
	}
	if h := cfg.Daemon.HistoryLimit; h < 1 || h > MaxHistoryLimit {
		errs = append(errs, ValidationError{Field: "daemon.history_limit", Message: fmt.Sprintf("must be within [1, %d]", MaxHistoryLimit)})
	}

	if !recognizedBackends[cfg.Automation.Backend] {
		errs = append(errs, ValidationError{
			Field:   "automation.backend",
			Message: fmt.Sprintf("unrecognized backend %q", cfg.Automation.Backend),
		})
	}

	return errs
}
