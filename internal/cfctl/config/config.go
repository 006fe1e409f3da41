package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Token    string        `yaml:"token,omitempty"`
	BaseURL  string        `yaml:"base_url,omitempty"`
	Timeouts TimeoutConfig `yaml:"timeouts,omitempty"`
}

// TimeoutConfig values are time.ParseDuration strings such as "5m".
type TimeoutConfig struct {
	HTTP    string `yaml:"http,omitempty"`
	Process string `yaml:"process,omitempty"`
	Poll    string `yaml:"poll,omitempty"`
}

const (
	DefaultBaseURL = "http://localhost:8080"

	EnvToken   = "CFCTL_TOKEN"
	EnvBaseURL = "CFCTL_BASE_URL"

	DefaultHTTPTimeout    = 10 * time.Minute
	DefaultProcessTimeout = 2 * time.Hour
	DefaultPollInterval   = 2 * time.Second
)

func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "cfctl"), nil
}

func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config file, if any, then applies environment overrides.
func Load() (*Config, error) {
	cfg := &Config{BaseURL: DefaultBaseURL}

	path, err := Path()
	if err == nil {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if v := os.Getenv(EnvToken); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.BaseURL = v
	}
	return cfg, nil
}

func (c *Config) Save() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	path, err := Path()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func (c *Config) IsAuthenticated() bool {
	return c.Token != ""
}

func (c *Config) SetToken(token string) error {
	c.Token = token
	return c.Save()
}

func (c *Config) ClearAuth() error {
	c.Token = ""
	return c.Save()
}

// Set updates a single key by its YAML name.
func (c *Config) Set(key, value string) error {
	switch key {
	case "base_url":
		c.BaseURL = value
	case "token":
		c.Token = value
	case "timeouts.http", "timeouts.process", "timeouts.poll":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		switch key {
		case "timeouts.http":
			c.Timeouts.HTTP = value
		case "timeouts.process":
			c.Timeouts.Process = value
		default:
			c.Timeouts.Poll = value
		}
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

// GetTimeout returns the configured duration for "http", "process" or
// "poll", falling back to the default when unset or unparseable.
func (c *Config) GetTimeout(name string) time.Duration {
	var configValue string
	var defaultValue time.Duration

	switch name {
	case "http":
		configValue, defaultValue = c.Timeouts.HTTP, DefaultHTTPTimeout
	case "process":
		configValue, defaultValue = c.Timeouts.Process, DefaultProcessTimeout
	case "poll":
		configValue, defaultValue = c.Timeouts.Poll, DefaultPollInterval
	default:
		return DefaultHTTPTimeout
	}

	if configValue == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(configValue)
	if err != nil || parsed <= 0 {
		return defaultValue
	}
	return parsed
}
