package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	mcpadapter "github.com/neomorfeo/rosterlink/internal/adapter/mcp"
	otelsetup "github.com/neomorfeo/rosterlink/internal/adapter/otel"
	"github.com/neomorfeo/rosterlink/internal/config"
	"github.com/neomorfeo/rosterlink/internal/domain"
)

// runMCP serves the command registry over stdio until stdin closes or ctx is
// cancelled. Stdout belongs to the protocol; logs and telemetry go to stderr.
func runMCP(ctx context.Context, cfg *config.Config) error {
	return serveMCP(ctx, cfg, os.Stderr, func(ctx context.Context, srv *mcpadapter.Server) error {
		return srv.RunStdio(ctx)
	})
}

func serveMCP(ctx context.Context, cfg *config.Config, logOut io.Writer, serve func(context.Context, *mcpadapter.Server) error) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.ValidateMCP(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := newLogger(cfg, logOut)
	slog.SetDefault(logger)

	providers, err := otelsetup.Setup(ctx, otelConfig(cfg, logOut))
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer shutdownOtel(context.Background(), providers, logger)

	c, err := newCore(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	srv, err := mcpadapter.NewServer(c.registry, c.dispatch, mcpadapter.Config{
		Name:    "rosterlink",
		Version: version,
		Tenant: domain.TenantContext{
			TenantID: cfg.MCPTenantID,
			UserID:   cfg.MCPUserID,
			Role:     domain.Role(cfg.MCPUserRole),
		},
		CommandTimeout: cfg.CommandTimeout,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("mcp: %w", err)
	}

	return serve(ctx, srv)
}
