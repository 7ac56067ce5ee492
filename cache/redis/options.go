package redis

import (
	"time"

	"github.com/kiryana/reporting/cache"
)

// Options controls how the cache store connects to the Redis server.
type Options struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

func (o Options) withDefaults() Options {
	if o.Addr == "" {
		o.Addr = "127.0.0.1:6379"
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 2 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 2 * time.Second
	}
	if o.DB < 0 {
		o.DB = 0
	}
	if o.PoolSize <= 0 {
		o.PoolSize = 8
	}
	return o
}

// StoreOption configures cache behavior on top of the connection options.
type StoreOption func(*Store)

// WithTTL sets the per-type TTL configuration.
func WithTTL(cfg cache.TTLConfig) StoreOption {
	return func(s *Store) { s.ttl = cfg }
}

// WithClock overrides the time source (used by tests).
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDial overrides how connections to the server are established.
func WithDial(fn dialFunc) StoreOption {
	return func(s *Store) {
		if fn != nil {
			s.dialFn = fn
		}
	}
}
