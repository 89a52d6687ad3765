package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"liveroom/pkg/database"
)

const (
	// EnvPrefix is prepended to every environment override, e.g.
	// LIVEROOM_HTTP_PORT for http.port.
	EnvPrefix = "LIVEROOM"

	// FileEnv names the variable holding the optional config file path.
	FileEnv = "LIVEROOM_CONFIG_FILE"
)

type Config struct {
	HTTP      *HTTPConfig      `mapstructure:"http"`
	WebSocket *WebSocketConfig `mapstructure:"websocket"`
	Database  *database.Config `mapstructure:"database"`
	Auth      *AuthConfig      `mapstructure:"auth"`
	Log       *LogConfig       `mapstructure:"log"`
	Limits    *LimitsConfig    `mapstructure:"limits"`
	Sweep     *SweepConfig     `mapstructure:"sweep"`
	Collab    *CollabConfig    `mapstructure:"collab"`
}

type HTTPConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type WebSocketConfig struct {
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
	BufferSize       int           `mapstructure:"buffer_size"`
	QueueSize        int           `mapstructure:"queue_size"`
	// AllowedOrigins empty accepts any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	Leeway    time.Duration `mapstructure:"leeway"`
	// AdminToken guards the user sync endpoints. Empty disables them.
	AdminToken string `mapstructure:"admin_token"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File enables a rotated log file in addition to stdout.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

type LimitsConfig struct {
	// MessagesPerMinute caps inbound frames per user. 0 disables the limit.
	MessagesPerMinute int `mapstructure:"messages_per_minute"`
}

type SweepConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Schedule   string        `mapstructure:"schedule"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

type CollabConfig struct {
	EnforceTenant bool `mapstructure:"enforce_tenant"`
}

// DefaultConfig returns settings suitable for a single classroom node.
// The JWT secret has no default and must be supplied.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval:     30 * time.Second,
			ReadTimeout:      60 * time.Second,
			WriteTimeout:     5 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			MaxMessageSize:   64 << 10,
			BufferSize:       256,
			QueueSize:        1024,
		},
		Database: database.DefaultConfig(),
		Auth: &AuthConfig{
			Issuer: "liveroom",
			Leeway: 30 * time.Second,
		},
		Log: &LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Limits: &LimitsConfig{
			MessagesPerMinute: 600,
		},
		Sweep: &SweepConfig{
			Enabled:    true,
			Schedule:   "@every 1m",
			StaleAfter: 30 * time.Minute,
		},
		Collab: &CollabConfig{
			EnforceTenant: true,
		},
	}
}

// setDefaults registers every key so environment overrides are visible to
// Unmarshal even when no file mentions them.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("http.host", d.HTTP.Host)
	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)
	v.SetDefault("http.allowed_origins", d.HTTP.AllowedOrigins)

	v.SetDefault("websocket.ping_interval", d.WebSocket.PingInterval)
	v.SetDefault("websocket.read_timeout", d.WebSocket.ReadTimeout)
	v.SetDefault("websocket.write_timeout", d.WebSocket.WriteTimeout)
	v.SetDefault("websocket.handshake_timeout", d.WebSocket.HandshakeTimeout)
	v.SetDefault("websocket.max_message_size", d.WebSocket.MaxMessageSize)
	v.SetDefault("websocket.buffer_size", d.WebSocket.BufferSize)
	v.SetDefault("websocket.queue_size", d.WebSocket.QueueSize)
	v.SetDefault("websocket.allowed_origins", d.WebSocket.AllowedOrigins)

	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.max_connections", d.Database.MaxConnections)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", d.Database.ConnMaxIdleTime)
	v.SetDefault("database.busy_timeout", d.Database.BusyTimeout)
	v.SetDefault("database.write_timeout", d.Database.WriteTimeout)

	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.issuer", d.Auth.Issuer)
	v.SetDefault("auth.leeway", d.Auth.Leeway)
	v.SetDefault("auth.admin_token", d.Auth.AdminToken)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)

	v.SetDefault("limits.messages_per_minute", d.Limits.MessagesPerMinute)

	v.SetDefault("sweep.enabled", d.Sweep.Enabled)
	v.SetDefault("sweep.schedule", d.Sweep.Schedule)
	v.SetDefault("sweep.stale_after", d.Sweep.StaleAfter)

	v.SetDefault("collab.enforce_tenant", d.Collab.EnforceTenant)
}

func (c *Config) Validate() error {
	if c.HTTP == nil {
		return errors.New("HTTP configuration is required")
	}
	// Port 0 binds an ephemeral port.
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("HTTP port must be between 0 and 65535")
	}
	if c.HTTP.Host == "" {
		return errors.New("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return errors.New("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return errors.New("HTTP write timeout must be positive")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return errors.New("HTTP shutdown timeout must be positive")
	}

	if c.WebSocket == nil {
		return errors.New("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return errors.New("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return errors.New("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return errors.New("WebSocket write timeout must be positive")
	}
	if c.WebSocket.HandshakeTimeout <= 0 {
		return errors.New("WebSocket handshake timeout must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return errors.New("WebSocket max message size must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return errors.New("WebSocket buffer size must be positive")
	}
	if c.WebSocket.QueueSize <= 0 {
		return errors.New("WebSocket queue size must be positive")
	}

	if c.Database == nil {
		return errors.New("database configuration is required")
	}
	if err := c.Database.Validate(); err != nil {
		return errors.Wrap(err, "database")
	}

	if c.Auth == nil {
		return errors.New("auth configuration is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth JWT secret cannot be empty")
	}
	if c.Auth.Leeway < 0 {
		return errors.New("auth leeway cannot be negative")
	}

	if c.Log == nil {
		return errors.New("log configuration is required")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return errors.Newf("log format %q must be json or console", c.Log.Format)
	}

	if c.Limits == nil {
		return errors.New("limits configuration is required")
	}
	if c.Limits.MessagesPerMinute < 0 {
		return errors.New("messages per minute cannot be negative")
	}

	if c.Sweep == nil {
		return errors.New("sweep configuration is required")
	}
	if c.Sweep.Enabled {
		if c.Sweep.Schedule == "" {
			return errors.New("sweep schedule cannot be empty")
		}
		if c.Sweep.StaleAfter <= 0 {
			return errors.New("sweep stale_after must be positive")
		}
	}

	if c.Collab == nil {
		return errors.New("collab configuration is required")
	}
	return nil
}

// Load resolves configuration with precedence defaults < file < environment
// and validates the result. An empty path falls back to LIVEROOM_CONFIG_FILE;
// if that is unset too, no file is read.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		if err := readFile(v, path); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		if path != "" {
			return nil, errors.Wrapf(err, "invalid configuration in %s", path)
		}
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func readFile(v *viper.Viper, path string) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		v.SetConfigType("yaml")
	case ".json":
		v.SetConfigType("json")
	default:
		return errors.Newf("unsupported config file extension %q", ext)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}
	return nil
}
