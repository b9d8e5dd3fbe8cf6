package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/divar-ir/sourcegraph-mcp/internal/cache"
	"github.com/divar-ir/sourcegraph-mcp/internal/config"
	"github.com/divar-ir/sourcegraph-mcp/internal/logging"
	"github.com/divar-ir/sourcegraph-mcp/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on both transports",
	Long: `Starts the MCP server: the streamable HTTP transport (default port 8080,
path /sourcegraph/mcp) and the SSE transport (default port 8000), plus
/health, /ready and /metrics endpoints. Configuration comes from the
environment; SRC_ENDPOINT is required.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	var opts []server.Option
	if cfg.RedisAddr != "" {
		store := cache.New(cfg.RedisAddr, cache.WithTTL(cfg.CacheTTL))
		defer store.Close()
		opts = append(opts, server.WithCache(store))
		logger.Info("search cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
	}

	srv, err := server.New(cfg, logger, opts...)
	if err != nil {
		return fmt.Errorf("initializing server: %w", err)
	}

	// SIGINT and SIGTERM both start the same graceful drain.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting sourcegraph-mcp", "endpoint", cfg.Endpoint)
	return srv.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
