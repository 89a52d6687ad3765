package websocket

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Options tune the transport. Zero values are replaced by defaults.
type Options struct {
	PingInterval     time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	MaxMessageSize   int64
	BufferSize       int
	// AllowedOrigins lists accepted Origin hosts. Empty or "*" accepts any.
	AllowedOrigins []string
}

func DefaultOptions() Options {
	return Options{
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		MaxMessageSize:   64 * 1024,
		BufferSize:       256,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = d.ReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = d.HandshakeTimeout
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	if o.BufferSize <= 0 {
		o.BufferSize = d.BufferSize
	}
	return o
}

func (o Options) checkOrigin(r *http.Request) bool {
	if len(o.AllowedOrigins) == 0 || lo.Contains(o.AllowedOrigins, "*") {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return lo.ContainsBy(o.AllowedOrigins, func(allowed string) bool {
		return strings.EqualFold(allowed, u.Host) || strings.EqualFold(allowed, origin)
	})
}
