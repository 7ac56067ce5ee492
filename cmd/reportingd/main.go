// Command reportingd serves the reporting and dashboard widget API of
// the Kiryana inventory platform.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kiryana/reporting/api"
	"github.com/kiryana/reporting/cache"
	cachememory "github.com/kiryana/reporting/cache/memory"
	cachepostgres "github.com/kiryana/reporting/cache/postgres"
	cacheredis "github.com/kiryana/reporting/cache/redis"
	"github.com/kiryana/reporting/config"
	"github.com/kiryana/reporting/httpx"
	"github.com/kiryana/reporting/report"
	"github.com/kiryana/reporting/upstream"
)

var rootCmd = &cobra.Command{
	Use:   "reportingd",
	Short: "Reporting and dashboard widget service",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	// A local .env is a convenience, not a requirement.
	_ = godotenv.Load()
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
	return log
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	clients := upstream.NewClients(upstream.Config{
		AuthURL:      cfg.Services.AuthURL,
		ProductURL:   cfg.Services.ProductURL,
		InventoryURL: cfg.Services.InventoryURL,
		StoreURL:     cfg.Services.StoreURL,
	})

	service := report.NewService(store, report.Sources{
		Movements: clients.Inventory,
		Inventory: clients.Inventory,
		Products:  clients.Product,
		Stores:    clients.Store,
	}, report.WithLogger(log))

	handler := api.NewHandler(service, log)
	server := httpx.NewServer(
		httpx.WithAddress(cfg.Server.Address),
		httpx.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		httpx.WithErrorHandler(api.ErrorHandler(log)),
	)
	server.RegisterRoutes(func(a *httpx.App) {
		handler.Register(a, api.AuthMiddleware(clients.Auth, log))
	})

	log.WithFields(logrus.Fields{
		"address": cfg.Server.Address,
		"backend": cfg.Cache.Backend,
	}).Info("reporting service starting")

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("reporting service stopped")
	return nil
}

func buildStore(ctx context.Context, cfg *config.Config, log *logrus.Logger) (cache.Store, error) {
	ttl := cfg.TTL()
	switch cfg.Cache.Backend {
	case config.BackendMemory:
		store := cachememory.NewStore(
			cachememory.WithTTL(ttl),
			cachememory.WithLogger(log),
			cachememory.WithReapInterval(cfg.Cache.PurgeInterval),
		)
		store.StartReaper(ctx)
		return store, nil
	case config.BackendRedis:
		return cacheredis.NewStore(cacheredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cacheredis.WithTTL(ttl)), nil
	case config.BackendPostgres:
		db, err := cachepostgres.Open(cachepostgres.WithDSN(cfg.Postgres.DSN))
		if err != nil {
			return nil, err
		}
		if err := cachepostgres.ApplyMigrations(ctx, db, cachepostgres.Schema...); err != nil {
			return nil, err
		}
		store := cachepostgres.NewStore(db,
			cachepostgres.WithTTL(ttl),
			cachepostgres.WithLogger(log),
			cachepostgres.WithReapInterval(cfg.Cache.PurgeInterval),
		)
		store.StartReaper(ctx)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}
