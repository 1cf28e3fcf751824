// Toolguard learns from an agent's failed tool calls and warns before the
// same mistake is repeated.
//
// The serve command runs the long-lived read-only HTTP API with optional
// background maintenance; optimize, summary, and stats operate on the
// configured pattern store directly.
//
// Configuration is read from ~/.config/toolguard/config.yaml and
// TOOLGUARD_* environment variables. See internal/config for the full
// schema.
//
// Usage:
//
//	# Run the API with defaults
//	toolguard serve
//
//	# Maintenance pass without saving
//	toolguard optimize --dry-run
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/config"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/store"
)

var (
	// configPath overrides the default config file location.
	configPath string

	// version information (set via ldflags during build)
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "toolguard",
	Short: "Learned guard rails for agent tool calls",
	Long: `toolguard records the mistakes an agent makes when calling tools and
warns before they are repeated. Patterns are learned from failed calls,
gain confidence as they recur, and fade when they stop recurring.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/toolguard/config.yaml)")
}

// loadRuntime loads the configuration and builds the logger every
// subcommand shares.
func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// newLogger builds a zap logger from the logging section.
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// openStore opens the configured backend and loads the pattern store.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store.PatternStore, error) {
	var backend store.Backend
	var err error
	switch cfg.Store.Backend {
	case "sqlite":
		backend, err = store.NewSQLiteBackend(cfg.Store.Path, logger)
	default:
		backend, err = store.NewDocumentBackend(cfg.Store.Path, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.Store.Backend, err)
	}

	st, err := store.NewPatternStore(ctx, backend, logger)
	if err != nil {
		return nil, fmt.Errorf("load pattern store: %w", err)
	}
	return st, nil
}

// Helper functions

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
