package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvBaseURL overrides the backend base URL from the environment.
const EnvBaseURL = "MEMHOOK_BASE_URL"

type Config struct {
	// BaseURL of the memory backend service.
	BaseURL string `yaml:"base_url"`

	// SummaryThreshold is the accumulated-message count that triggers
	// a summarization job.
	SummaryThreshold int `yaml:"summary_threshold"`

	// Timeouts for backend calls, in seconds. Dispatch covers the
	// fire-and-forget summarize/reindex commands, which are expected
	// to outlive the client's wait.
	ConnectTimeoutSec  int `yaml:"connect_timeout_sec"`
	RequestTimeoutSec  int `yaml:"request_timeout_sec"`
	DispatchTimeoutSec int `yaml:"dispatch_timeout_sec"`

	ActivityLog *ActivityLogConfig `yaml:"activity_log"`
}

type ActivityLogConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BaseURL:            "http://127.0.0.1:3737",
		SummaryThreshold:   30,
		ConnectTimeoutSec:  5,
		RequestTimeoutSec:  10,
		DispatchTimeoutSec: 5,
		ActivityLog:        &ActivityLogConfig{Enabled: true},
	}
}

// ConfigDir returns the memhook configuration directory (~/.memhook/).
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".memhook")
	}
	return filepath.Join(home, ".memhook")
}

// Load reads the config from ~/.memhook/config.yaml.
// If the file does not exist, it returns the defaults with no error.
func Load() (*Config, error) {
	return LoadFrom(filepath.Join(ConfigDir(), "config.yaml"))
}

// LoadFrom reads the config from the given path. Missing file returns the
// defaults; set fields override them. MEMHOOK_BASE_URL wins over the file.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		var file Config
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, err
		}
		cfg.merge(&file)
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if url := os.Getenv(EnvBaseURL); url != "" {
		cfg.BaseURL = url
	}
	return cfg, nil
}

func (c *Config) merge(o *Config) {
	if o.BaseURL != "" {
		c.BaseURL = o.BaseURL
	}
	if o.SummaryThreshold > 0 {
		c.SummaryThreshold = o.SummaryThreshold
	}
	if o.ConnectTimeoutSec > 0 {
		c.ConnectTimeoutSec = o.ConnectTimeoutSec
	}
	if o.RequestTimeoutSec > 0 {
		c.RequestTimeoutSec = o.RequestTimeoutSec
	}
	if o.DispatchTimeoutSec > 0 {
		c.DispatchTimeoutSec = o.DispatchTimeoutSec
	}
	if o.ActivityLog != nil {
		c.ActivityLog = o.ActivityLog
	}
}

// ConnectTimeout returns the dial timeout as a duration.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSec) * time.Second
}

// RequestTimeout returns the total request budget as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// DispatchTimeout returns the dispatch wait budget as a duration.
func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.DispatchTimeoutSec) * time.Second
}
