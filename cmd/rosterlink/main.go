package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/neomorfeo/rosterlink/internal/config"
)

const version = "0.1.0"

func NewRootCommand() *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:           "rosterlink",
		Short:         "Planning Center integration gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and process background sync jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, config.GetConfig())
		},
	}

	var mcpCmd = &cobra.Command{
		Use:   "mcp",
		Short: "Expose the command registry as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runMCP(ctx, config.GetConfig())
		},
	}

	var configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.GetConfig()
			fmt.Fprint(cmd.OutOrStdout(), cfg.String())
			return cfg.Validate()
		},
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(configCmd)

	return rootCmd
}

func main() {
	cmd := NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "rosterlink:", err)
		os.Exit(1)
	}
}
