package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Auth.JWTSecret = "test-secret"
	return cfg
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestConfig_DefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingInterval)
	assert.NotEmpty(t, cfg.Database.Path)
	assert.True(t, cfg.Collab.EnforceTenant)
	assert.Empty(t, cfg.Auth.JWTSecret)

	// A secret is the only thing the defaults lack.
	assert.Error(t, cfg.Validate())
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative port", func(c *Config) { c.HTTP.Port = -1 }},
		{"port too large", func(c *Config) { c.HTTP.Port = 70000 }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"zero shutdown timeout", func(c *Config) { c.HTTP.ShutdownTimeout = 0 }},
		{"read timeout under ping", func(c *Config) { c.WebSocket.ReadTimeout = c.WebSocket.PingInterval }},
		{"zero buffer", func(c *Config) { c.WebSocket.BufferSize = 0 }},
		{"zero queue", func(c *Config) { c.WebSocket.QueueSize = 0 }},
		{"zero max message", func(c *Config) { c.WebSocket.MaxMessageSize = 0 }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"missing websocket", func(c *Config) { c.WebSocket = nil }},
		{"negative leeway", func(c *Config) { c.Auth.Leeway = -time.Second }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"negative rate", func(c *Config) { c.Limits.MessagesPerMinute = -1 }},
		{"empty schedule", func(c *Config) { c.Sweep.Schedule = "" }},
		{"zero stale_after", func(c *Config) { c.Sweep.StaleAfter = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("disabled sweep skips its checks", func(t *testing.T) {
		cfg := validConfig()
		cfg.Sweep.Enabled = false
		cfg.Sweep.Schedule = ""
		assert.NoError(t, cfg.Validate())
	})
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("LIVEROOM_AUTH_JWT_SECRET", "env-secret")
	t.Setenv("LIVEROOM_HTTP_PORT", "9090")
	t.Setenv("LIVEROOM_WEBSOCKET_PING_INTERVAL", "15s")
	t.Setenv("LIVEROOM_DATABASE_PATH", "/tmp/env.db")
	t.Setenv("LIVEROOM_COLLAB_ENFORCE_TENANT", "false")
	t.Setenv("LIVEROOM_LIMITS_MESSAGES_PER_MINUTE", "0")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 15*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, "/tmp/env.db", cfg.Database.Path)
	assert.False(t, cfg.Collab.EnforceTenant)
	assert.Equal(t, 0, cfg.Limits.MessagesPerMinute)
	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultConfig().WebSocket.BufferSize, cfg.WebSocket.BufferSize)
}

func TestLoad_FromYAMLFile(t *testing.T) {
	path := writeFile(t, "liveroom.yaml", `
http:
  port: 7000
  allowed_origins: ["https://lms.example.com"]
websocket:
  buffer_size: 32
auth:
  jwt_secret: file-secret
  admin_token: admin
sweep:
  stale_after: 5m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.HTTP.Port)
	assert.Equal(t, []string{"https://lms.example.com"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 32, cfg.WebSocket.BufferSize)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "admin", cfg.Auth.AdminToken)
	assert.Equal(t, 5*time.Minute, cfg.Sweep.StaleAfter)
	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
}

func TestLoad_FromJSONFile(t *testing.T) {
	path := writeFile(t, "liveroom.json", `{
		"auth": {"jwt_secret": "json-secret"},
		"log": {"format": "console", "level": "debug"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "debug", cfg.Log.Level)
}

// Environment wins over the file, and the file wins over defaults.
func TestLoad_Precedence(t *testing.T) {
	path := writeFile(t, "liveroom.yml", `
http:
  port: 7000
  host: 127.0.0.1
auth:
  jwt_secret: file-secret
`)
	t.Setenv(FileEnv, path)
	t.Setenv("LIVEROOM_HTTP_PORT", "7500")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7500, cfg.HTTP.Port)
	assert.Equal(t, "127.0.0.1", cfg.HTTP.Host)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("LIVEROOM_AUTH_JWT_SECRET", "")

	t.Run("missing secret", func(t *testing.T) {
		_, err := Load("")
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := Load(writeFile(t, "liveroom.toml", "x = 1"))
		assert.ErrorContains(t, err, "unsupported config file extension")
	})

	t.Run("malformed file", func(t *testing.T) {
		_, err := Load(writeFile(t, "liveroom.json", "{not json"))
		assert.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := Load(writeFile(t, "liveroom.yaml", "auth:\n  jwt_secret: s\nhttp:\n  port: -5\n"))
		assert.ErrorContains(t, err, "HTTP port")
	})
}
