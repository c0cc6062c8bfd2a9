package config

import "time"

// Config is the top-level configuration structure parsed from sitefactory YAML.
type Config struct {
	Session    SessionConfig    `yaml:"session"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Learning   LearningConfig   `yaml:"learning"`
	Daemon     DaemonConfig     `yaml:"daemon"`
	Automation AutomationConfig `yaml:"automation"`
	Graph      GraphConfig      `yaml:"graph"`
	Paths      PathsConfig      `yaml:"paths"`
}

// SessionConfig holds the options recognized by a single test session.
type SessionConfig struct {
	WebsiteCount      int     `yaml:"website_count" env:"SITEFACTORY_WEBSITE_COUNT"`
	UseRealImages     bool    `yaml:"use_real_images" env:"SITEFACTORY_USE_REAL_IMAGES"`
	RandomIndustries  *bool   `yaml:"random_industries"`
	MaxRetries        *int    `yaml:"max_retries"`
	TimeoutPerWebsite string  `yaml:"timeout_per_website" env:"SITEFACTORY_TIMEOUT_PER_WEBSITE"`
	Headless          *bool   `yaml:"headless"`
	SaveScreenshots   *bool   `yaml:"save_screenshots"`
	QualityThreshold  float64 `yaml:"quality_threshold" env:"SITEFACTORY_QUALITY_THRESHOLD"`
	BaseURL           string  `yaml:"base_url" env:"SITEFACTORY_BASE_URL"`
	Seed              int64   `yaml:"seed" env:"SITEFACTORY_SEED"`
}

// ExecutionConfig tunes the command execution engine.
type ExecutionConfig struct {
	CommandDelay string `yaml:"command_delay" env:"SITEFACTORY_COMMAND_DELAY"`
	RetryDelay   string `yaml:"retry_delay" env:"SITEFACTORY_RETRY_DELAY"`
}

// GeneratorConfig bounds the size of generated command lists.
type GeneratorConfig struct {
	MinCommands      int  `yaml:"min_commands"`
	MaxCommands      int  `yaml:"max_commands"`
	TruncateOverflow bool `yaml:"truncate_overflow"`
}

// LearningConfig tunes how learnings are activated.
type LearningConfig struct {
	ActivationThreshold float64 `yaml:"activation_threshold" env:"SITEFACTORY_ACTIVATION_THRESHOLD"`
}

// DaemonConfig tunes the long-running daemon wrapper.
type DaemonConfig struct {
	MaxConsecutiveErrors int    `yaml:"max_consecutive_errors" env:"SITEFACTORY_MAX_CONSECUTIVE_ERRORS"`
	HealthInterval       string `yaml:"health_interval"`
	SessionInterval      string `yaml:"session_interval" env:"SITEFACTORY_SESSION_INTERVAL"`
	HeapCeilingMB        int    `yaml:"heap_ceiling_mb"`
	HistoryLimit         int    `yaml:"history_limit"`
}

// AutomationConfig selects the browser automation backend.
type AutomationConfig struct {
	Backend      string `yaml:"backend" env:"SITEFACTORY_AUTOMATION_BACKEND"`
	SelectorAttr string `yaml:"selector_attr"`
}

// GraphConfig configures where staged learning entities are exported.
type GraphConfig struct {
	PostgresDSN string `yaml:"postgres_dsn" env:"SITEFACTORY_GRAPH_DSN"`
}

// PathsConfig overrides the state root (~/.sitefactory by default).
type PathsConfig struct {
	Home string `yaml:"home" env:"SITEFACTORY_HOME"`
}

// Default values.
const (
	DefaultWebsiteCount         = 10
	DefaultMaxRetries           = 3
	DefaultTimeoutPerWebsite    = "5m"
	DefaultQualityThreshold     = 7.5
	DefaultBaseURL              = "http://localhost:3000"
	DefaultCommandDelay         = "100ms"
	DefaultRetryDelay           = "1s"
	DefaultMinCommands          = 50
	DefaultMaxCommands          = 100
	DefaultActivationThreshold  = 0.5
	DefaultMaxConsecutiveErrors = 5
	DefaultHealthInterval       = "30s"
	DefaultSessionInterval      = "15m"
	DefaultHeapCeilingMB        = 512
	DefaultHistoryLimit         = 50
	DefaultBackend              = "chromedp"
	DefaultSelectorAttr         = "data-testid"

	// MaxHistoryLimit is the hard upper bound on the daemon session history ring.
	MaxHistoryLimit = 50
)

// RandomIndustriesEnabled reports whether industries are drawn randomly.
func (s SessionConfig) RandomIndustriesEnabled() bool {
	return s.RandomIndustries == nil || *s.RandomIndustries
}

// HeadlessEnabled reports whether the browser runs headless.
func (s SessionConfig) HeadlessEnabled() bool {
	return s.Headless == nil || *s.Headless
}

// ScreenshotsEnabled reports whether screenshots are persisted.
func (s SessionConfig) ScreenshotsEnabled() bool {
	return s.SaveScreenshots == nil || *s.SaveScreenshots
}

// Retries returns the configured retry ceiling.
func (s SessionConfig) Retries() int {
	if s.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *s.MaxRetries
}

// Timeout returns the per-website timeout.
func (s SessionConfig) Timeout() time.Duration {
	return parseDuration(s.TimeoutPerWebsite, 5*time.Minute)
}

// CommandDelayDuration returns the fixed inter-command delay.
func (e ExecutionConfig) CommandDelayDuration() time.Duration {
	return parseDuration(e.CommandDelay, 100*time.Millisecond)
}

// RetryDelayDuration returns the fixed inter-retry delay.
func (e ExecutionConfig) RetryDelayDuration() time.Duration {
	return parseDuration(e.RetryDelay, time.Second)
}

// HealthIntervalDuration returns the daemon health tick period.
func (d DaemonConfig) HealthIntervalDuration() time.Duration {
	return parseDuration(d.HealthInterval, 30*time.Second)
}

// SessionIntervalDuration returns the pause between daemon sessions.
func (d DaemonConfig) SessionIntervalDuration() time.Duration {
	return parseDuration(d.SessionInterval, 15*time.Minute)
}

// parseDuration parses a duration string, falling back to a default.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// BoolPtr is a helper for literal configs.
func BoolPtr(b bool) *bool { return &b }

// IntPtr is a helper for literal configs.
func IntPtr(i int) *int { return &i }
