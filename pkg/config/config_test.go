package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wispd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
api_addr: ":9999"
probe_interval: 30s
probe_timeout: 3s
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.APIAddr)
	assert.Equal(t, 30*time.Second, cfg.ProbeInterval)
	assert.Equal(t, 3*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Untouched keys keep their defaults
	assert.Equal(t, "/var/lib/wisp", cfg.DataDir)
	assert.Equal(t, 8*time.Second, cfg.DeviceTimeout)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "api_addr: [not: closed")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero probe interval", func(c *Config) { c.ProbeInterval = 0 }},
		{"timeout exceeds interval", func(c *Config) { c.ProbeTimeout = 2 * c.ProbeInterval }},
		{"zero device timeout", func(c *Config) { c.DeviceTimeout = 0 }},
		{"zero token ttl", func(c *Config) { c.TokenTTL = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}

	assert.NoError(t, Default().validate())
}
