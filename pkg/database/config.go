// Package database holds the sqlite configuration, migrations and schema
// checks shared by the user directory.
package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mattn/go-sqlite3"
)

// Config holds database configuration.
type Config struct {
	Path            string        `mapstructure:"path" json:"path"`
	MaxConnections  int           `mapstructure:"max_connections" json:"max_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" json:"conn_max_idle_time"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout" json:"busy_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Path:            "./data/liveroom.db",
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		BusyTimeout:     5 * time.Second,
		WriteTimeout:    30 * time.Second,
	}
}

func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.New("database path cannot be empty")
	}
	if c.MaxConnections <= 0 {
		return errors.New("max connections must be greater than 0")
	}
	if c.ConnMaxLifetime <= 0 {
		return errors.New("connection max lifetime must be greater than 0")
	}
	if c.ConnMaxIdleTime <= 0 {
		return errors.New("connection max idle time must be greater than 0")
	}
	if c.BusyTimeout < 0 {
		return errors.New("busy timeout cannot be negative")
	}
	if c.WriteTimeout <= 0 {
		return errors.New("write timeout must be greater than 0")
	}
	return nil
}

// DSN builds the go-sqlite3 connection string. Pragmas passed here apply to
// every pooled connection, not just the first.
func (c *Config) DSN() string {
	q := url.Values{}
	q.Set("_busy_timeout", fmt.Sprint(c.BusyTimeout.Milliseconds()))
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_foreign_keys", "on")
	return "file:" + c.Path + "?" + q.Encode()
}

// ApplyPool copies the pool limits onto db.
func (c *Config) ApplyPool(db *sql.DB) {
	db.SetMaxOpenConns(c.MaxConnections)
	db.SetConnMaxLifetime(c.ConnMaxLifetime)
	db.SetConnMaxIdleTime(c.ConnMaxIdleTime)
}

// DriverName is the go-sqlite3 driver registered with the connection tuning
// hook.
const DriverName = "sqlite3_liveroom"

const sqliteTuning = `
	PRAGMA cache_size = -16000;
	PRAGMA temp_store = MEMORY;
`

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if _, err := conn.Exec(sqliteTuning, nil); err != nil {
				return errors.Wrap(err, "apply sqlite pragmas")
			}
			return nil
		},
	})
}

// Open returns a pool whose every connection carries the DSN pragmas and the
// cache tuning.
func Open(c *Config) (*sql.DB, error) {
	db, err := sql.Open(DriverName, c.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	c.ApplyPool(db)
	return db, nil
}
