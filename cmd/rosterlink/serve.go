package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"

	handler "github.com/neomorfeo/rosterlink/internal/adapter/http"
	otelsetup "github.com/neomorfeo/rosterlink/internal/adapter/otel"
	riveradapter "github.com/neomorfeo/rosterlink/internal/adapter/river"
	"github.com/neomorfeo/rosterlink/internal/app"
	"github.com/neomorfeo/rosterlink/internal/config"
)

// runServe serves the HTTP API and the sync worker until ctx is cancelled.
func runServe(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	// --- Observability ---
	providers, err := otelsetup.Setup(ctx, otelConfig(cfg, os.Stderr))
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer shutdownOtel(context.Background(), providers, logger)

	// --- Adapters (out) ---
	c, err := newCore(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	// The worker and the service reference each other; the worker only runs
	// after Start, by which point svc is set.
	var svc *app.ConnectionService
	queue, err := riveradapter.Setup(ctx, c.db, func(ctx context.Context, tenantID string) error {
		report, err := svc.Sync(ctx, tenantID)
		if err == nil {
			logger.InfoContext(ctx, "sync finished",
				"tenant_id", tenantID,
				"people", report.People,
				"songs", report.Songs,
				"teams", report.Teams,
			)
		}
		return err
	}, riveradapter.Options{
		Workers:    cfg.SyncWorkers,
		JobTimeout: cfg.SyncJobTimeout,
		Logger:     logger.With("component", "river"),
	})
	if err != nil {
		return fmt.Errorf("river: %w", err)
	}

	// --- Application ---
	scheduler := otelsetup.NewTracingScheduler(riveradapter.NewPublisher(queue))
	svc = c.connectionService(scheduler, logger)

	// Stop drives shutdown; a cancelled start context would skip the graceful drain.
	if err := queue.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("starting river: %w", err)
	}

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)
	router.Use(otelchi.Middleware(cfg.OtelServiceName, otelchi.WithChiRoutes(router)))

	api := humachi.New(router, huma.DefaultConfig("rosterlink", version))
	handler.Register(api, handler.Deps{
		Dispatcher:     c.dispatch,
		Connections:    svc,
		CommandTimeout: cfg.CommandTimeout,
	})

	// --- Server ---
	addr := ":" + strconv.Itoa(cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "rosterlink listening", "addr", addr, "docs", "http://localhost"+addr+"/docs")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stopQueue(queue, cfg.ShutdownTimeout, logger)
			return fmt.Errorf("server: %w", err)
		}
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	stopQueue(queue, cfg.ShutdownTimeout, logger)

	logger.Info("stopped")
	return nil
}

func stopQueue(queue *riveradapter.Client, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := queue.Stop(ctx); err != nil {
		logger.Error("river shutdown failed", "error", err)
	}
}
