package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the server configuration for wispd
type Config struct {
	// DataDir is where the bbolt registry lives
	DataDir string `yaml:"data_dir"`

	// APIAddr is the admin API listen address
	APIAddr string `yaml:"api_addr"`

	// Log settings
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "console" or "json"

	// Monitor settings
	ProbeInterval time.Duration `yaml:"probe_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`

	// Device client settings
	DeviceTimeout time.Duration `yaml:"device_timeout"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`

	// TokenTTL is the fixed expiry horizon for management tokens
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		DataDir:       "/var/lib/wisp",
		APIAddr:       ":8480",
		LogLevel:      "info",
		LogFormat:     "console",
		ProbeInterval: time.Minute,
		ProbeTimeout:  5 * time.Second,
		DeviceTimeout: 8 * time.Second,
		CacheTTL:      2 * time.Minute,
		TokenTTL:      30 * 24 * time.Hour,
	}
}

// Load reads a YAML config file and overlays it on the defaults.
// A missing path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.ProbeInterval <= 0 {
		return fmt.Errorf("probe_interval must be positive")
	}
	if c.ProbeTimeout <= 0 || c.ProbeTimeout >= c.ProbeInterval {
		return fmt.Errorf("probe_timeout must be positive and shorter than probe_interval")
	}
	if c.DeviceTimeout <= 0 {
		return fmt.Errorf("device_timeout must be positive")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token_ttl must be positive")
	}
	return nil
}
