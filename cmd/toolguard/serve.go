package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/optimize"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/server"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/store"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/toolguard"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the read-only pattern API",
	Long: `Run the long-lived HTTP API over the learned patterns.

The server exposes /health, /metrics, and the /api/v1 read endpoints.
With store.watch enabled the document backend reloads on external
changes; with optimizer.enabled a background scheduler runs the
maintenance pass at the configured interval.

Shuts down gracefully on SIGINT or SIGTERM.

Examples:
  # Defaults: 127.0.0.1:8787, document store
  toolguard serve

  # Different port via the environment
  TOOLGUARD_SERVER_PORT=9999 toolguard serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if cfg.Store.Watch && cfg.Store.Backend == "document" {
		watcher, err := store.NewWatcher(cfg.Store.Path, st, logger, 0)
		if err != nil {
			return fmt.Errorf("create store watcher: %w", err)
		}
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("start store watcher: %w", err)
		}
		defer watcher.Stop()
		logger.Info("watching pattern document for external changes",
			zap.String("path", cfg.Store.Path))
	}

	if cfg.Optimizer.Enabled {
		scheduler, err := optimize.NewScheduler(
			optimize.NewOptimizer(st, logger),
			logger,
			optimize.WithInterval(cfg.Optimizer.Interval),
			optimize.WithOptions(optimizerOptions(cfg.Optimizer)),
		)
		if err != nil {
			return fmt.Errorf("create maintenance scheduler: %w", err)
		}
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("start maintenance scheduler: %w", err)
		}
		defer scheduler.Stop()
		logger.Info("maintenance scheduler started",
			zap.Duration("interval", cfg.Optimizer.Interval))
	}

	svc := toolguard.New(cfg, st, nil, logger)
	srv, err := server.NewServer(svc, st, cfg.Server, logger)
	if err != nil {
		return err
	}

	logger.Info("starting toolguard",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)),
		zap.String("backend", cfg.Store.Backend),
		zap.String("store_path", cfg.Store.Path))

	if err := srv.Start(ctx); err != nil && err != http.ErrServerClosed {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}
