package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/neomorfeo/rosterlink/internal/adapter/fsm"
	"github.com/neomorfeo/rosterlink/internal/adapter/lrucache"
	otelsetup "github.com/neomorfeo/rosterlink/internal/adapter/otel"
	"github.com/neomorfeo/rosterlink/internal/adapter/planningcenter"
	"github.com/neomorfeo/rosterlink/internal/adapter/sqlite"
	"github.com/neomorfeo/rosterlink/internal/adapter/vault"
	"github.com/neomorfeo/rosterlink/internal/app"
	"github.com/neomorfeo/rosterlink/internal/app/commands"
	"github.com/neomorfeo/rosterlink/internal/config"
	"github.com/neomorfeo/rosterlink/internal/domain"
	"github.com/neomorfeo/rosterlink/internal/ratelimit"
)

// newLogger builds the process logger from config.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func otelConfig(cfg *config.Config, out io.Writer) otelsetup.Config {
	return otelsetup.Config{
		ServiceName:    cfg.OtelServiceName,
		ServiceVersion: cfg.OtelServiceVersion,
		Environment:    cfg.OtelEnvironment,
		Exporter:       cfg.OtelExporter,
		Insecure:       cfg.OtelEnvironment == "development",
		Output:         out,
	}
}

// core holds the adapters and services shared by every entry point.
type core struct {
	db        *sql.DB
	store     *sqlite.Store
	repo      domain.ConnectionRepository
	vault     *vault.Vault
	factory   domain.ClientFactory
	validator *fsm.Validator
	resolver  *app.Resolver
	registry  *app.Registry
	dispatch  domain.Dispatcher
}

// newCore opens storage and builds the dispatch pipeline.
func newCore(cfg *config.Config, logger *slog.Logger) (*core, error) {
	db, err := otelsetup.OpenDB(cfg.DatabasePath, sqlite.Configure)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	store, err := sqlite.NewFromDB(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("database: %w", err)
	}

	v, err := vault.New(cfg.EncryptionKey)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("vault: %w", err)
	}

	c := &core{
		db:        db,
		store:     store,
		repo:      otelsetup.NewTracingRepository(store),
		vault:     v,
		validator: fsm.New(),
	}

	c.factory = otelsetup.TracingFactory(planningcenter.NewFactory(planningcenter.Config{
		BaseURL:   cfg.UpstreamBaseURL,
		UserAgent: cfg.UpstreamUserAgent,
		RateLimit: ratelimit.Config{
			Capacity:        cfg.RateLimitCapacity,
			Interval:        cfg.RateLimitInterval,
			FireImmediately: cfg.RateLimitFireImmediately,
		},
		HTTPClient: planningcenter.NewHTTPClient(cfg.UpstreamTimeout),
	}))
	c.resolver = app.NewResolver(c.repo, c.vault, c.factory, c.validator)

	c.registry, err = app.NewRegistry(commands.Catalog(commands.Deps{
		Records: store,
		Queries: lrucache.New(cfg.QueryCacheSize, cfg.QueryCacheTTL),
	})...)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: %w", err)
	}

	c.dispatch, err = otelsetup.NewInstrumentedDispatcher(app.NewDispatch(c.registry, c.resolver, logger))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("dispatcher: %w", err)
	}

	return c, nil
}

func (c *core) Close() error {
	return c.store.Close()
}

// connectionService builds the lifecycle service around scheduler.
func (c *core) connectionService(scheduler domain.SyncScheduler, logger *slog.Logger) *app.ConnectionService {
	return app.NewConnectionService(c.resolver, app.ConnectionDeps{
		Repo:      c.repo,
		Vault:     c.vault,
		Factory:   c.factory,
		Validator: c.validator,
		Scheduler: scheduler,
		Cache:     c.store,
		Logger:    logger,
	})
}

// shutdownOtel flushes telemetry, logging rather than failing on error.
func shutdownOtel(ctx context.Context, providers *otelsetup.Providers, logger *slog.Logger) {
	if err := providers.Shutdown(ctx); err != nil {
		logger.ErrorContext(ctx, "otel shutdown failed", "error", err)
	}
}
