package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Load reads and parses a configuration from the given YAML file path.
// After parsing, environment overrides are applied, then defaults fill any
// remaining zero values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("reading environment overrides: %w", err)
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the
// first one found. Search order: ./sitefactory.yaml, ~/.sitefactory/config.yaml.
// When no file exists the built-in defaults are returned.
func LoadDefault() (*Config, error) {
	candidates := []string{"sitefactory.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".sitefactory", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return Defaults()
}

// Defaults returns a config built only from environment overrides and defaults.
func Defaults() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("reading environment overrides: %w", err)
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// ApplyDefaults fills every zero-valued option with its documented default.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Session
	if s.WebsiteCount == 0 {
		s.WebsiteCount = DefaultWebsiteCount
	}
	if s.RandomIndustries == nil {
		s.RandomIndustries = BoolPtr(true)
	}
	if s.MaxRetries == nil {
		s.MaxRetries = IntPtr(DefaultMaxRetries)
	}
	if s.TimeoutPerWebsite == "" {
		s.TimeoutPerWebsite = DefaultTimeoutPerWebsite
	}
	if s.Headless == nil {
		s.Headless = BoolPtr(true)
	}
	if s.SaveScreenshots == nil {
		s.SaveScreenshots = BoolPtr(true)
	}
	if s.QualityThreshold == 0 {
		s.QualityThreshold = DefaultQualityThreshold
	}
	if s.BaseURL == "" {
		s.BaseURL = DefaultBaseURL
	}

	if cfg.Execution.CommandDelay == "" {
		cfg.Execution.CommandDelay = DefaultCommandDelay
	}
	if cfg.Execution.RetryDelay == "" {
		cfg.Execution.RetryDelay = DefaultRetryDelay
	}

	if cfg.Generator.MinCommands == 0 {
		cfg.Generator.MinCommands = DefaultMinCommands
	}
	if cfg.Generator.MaxCommands == 0 {
		cfg.Generator.MaxCommands = DefaultMaxCommands
	}

	if cfg.Learning.ActivationThreshold == 0 {
		cfg.Learning.ActivationThreshold = DefaultActivationThreshold
	}

	d := &cfg.Daemon
	if d.MaxConsecutiveErrors == 0 {
		d.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	if d.HealthInterval == "" {
		d.HealthInterval = DefaultHealthInterval
	}
	if d.SessionInterval == "" {
		d.SessionInterval = DefaultSessionInterval
	}
	if d.HeapCeilingMB == 0 {
		d.HeapCeilingMB = DefaultHeapCeilingMB
	}
	if d.HistoryLimit == 0 {
		d.HistoryLimit = DefaultHistoryLimit
	}

	if cfg.Automation.Backend == "" {
		cfg.Automation.Backend = DefaultBackend
	}
	if cfg.Automation.SelectorAttr == "" {
		cfg.Automation.SelectorAttr = DefaultSelectorAttr
	}
}

// Home returns the state root, creating it if needed.
func (c *Config) Home() (string, error) {
	dir := c.Paths.Home
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home dir: %w", err)
		}
		dir = filepath.Join(home, ".sitefactory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return dir, nil
}
