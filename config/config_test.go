package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadConfigDefaults tests that defaults are applied when no file exists
func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("STRATA_TEST_DEFAULTS", filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Webhook.MaxRetries)
	assert.Equal(t, time.Second, cfg.Webhook.InitialDelay)
	assert.Equal(t, 2.0, cfg.Webhook.Multiplier)
	assert.Equal(t, 10*time.Second, cfg.Webhook.RequestTimeout)
	assert.Equal(t, 5*time.Second, cfg.Database.BusyTimeout)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Bus.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

// TestLoadConfigFromFile tests YAML file loading
func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
  debug: true
database:
  dsn: "host=db port=5432 user=app dbname=app"
webhook:
  max_retries: 3
  initial_delay: 100ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig("STRATA_TEST_FILE", path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Server.Debug)
	assert.Equal(t, "host=db port=5432 user=app dbname=app", cfg.Database.DSN)
	assert.Equal(t, 3, cfg.Webhook.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.Webhook.InitialDelay)
}

// TestEnvironmentOverride tests that env vars override file values
func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("STRATAENV_SERVER_PORT", "7070")

	cfg, err := LoadConfig("STRATAENV", filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
}

// TestValidateConfig tests configuration validation rules
func TestValidateConfig(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{DSN: "host=localhost"},
			Webhook:  WebhookConfig{MaxRetries: 5, Multiplier: 2},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "Valid", mutate: func(c *Config) {}, wantErr: ""},
		{name: "BadPort", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "invalid server port"},
		{name: "MissingDSN", mutate: func(c *Config) { c.Database.DSN = "" }, wantErr: "database dsn is required"},
		{name: "BadRetries", mutate: func(c *Config) { c.Webhook.MaxRetries = 0 }, wantErr: "max_retries"},
		{name: "BadMultiplier", mutate: func(c *Config) { c.Webhook.Multiplier = 0.5 }, wantErr: "multiplier"},
		{name: "MediaNoBucket", mutate: func(c *Config) { c.Media.Enabled = true }, wantErr: "media bucket"},
		{name: "BusNoURL", mutate: func(c *Config) { c.Bus.Enabled = true }, wantErr: "bus url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := ValidateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
