// Package config loads service configuration from the environment,
// with REPORTING_* variables overriding the defaults.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kiryana/reporting/cache"
	"github.com/kiryana/reporting/report"
)

// Cache backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type CacheConfig struct {
	Backend       string
	ReportTTL     time.Duration
	WidgetTTL     time.Duration
	PurgeInterval time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	DSN string
}

type ServicesConfig struct {
	AuthURL      string
	ProductURL   string
	InventoryURL string
	StoreURL     string
}

type Config struct {
	Server   ServerConfig
	LogLevel string
	Cache    CacheConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Services ServicesConfig
}

// Load reads configuration from the environment. Every key has a
// sensible default, so a bare process starts with the in-memory cache
// against local service addresses.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("reporting")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.address", ":8085")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("log.level", "info")

	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.report_ttl", 15*time.Minute)
	v.SetDefault("cache.widget_ttl", 5*time.Minute)
	v.SetDefault("cache.purge_interval", time.Minute)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("postgres.dsn", "")

	v.SetDefault("services.auth_url", "http://localhost:3001")
	v.SetDefault("services.product_url", "http://localhost:3002")
	v.SetDefault("services.inventory_url", "http://localhost:3003")
	v.SetDefault("services.store_url", "http://localhost:3004")

	cfg := &Config{
		Server: ServerConfig{
			Address:      v.GetString("server.address"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
		},
		LogLevel: v.GetString("log.level"),
		Cache: CacheConfig{
			Backend:       v.GetString("cache.backend"),
			ReportTTL:     v.GetDuration("cache.report_ttl"),
			WidgetTTL:     v.GetDuration("cache.widget_ttl"),
			PurgeInterval: v.GetDuration("cache.purge_interval"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Postgres: PostgresConfig{
			DSN: v.GetString("postgres.dsn"),
		},
		Services: ServicesConfig{
			AuthURL:      v.GetString("services.auth_url"),
			ProductURL:   v.GetString("services.product_url"),
			InventoryURL: v.GetString("services.inventory_url"),
			StoreURL:     v.GetString("services.store_url"),
		},
	}
	return cfg, nil
}

// TTL builds the cache TTL table: report types use the report TTL,
// widget types the shorter widget TTL.
func (c *Config) TTL() cache.TTLConfig {
	perType := make(map[string]time.Duration)
	for _, widgetType := range report.WidgetTypes() {
		perType[widgetType] = c.Cache.WidgetTTL
	}
	return cache.TTLConfig{Default: c.Cache.ReportTTL, PerType: perType}
}
