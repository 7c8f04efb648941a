// Package cmd implements the CLI commands for AuditPipe using Cobra.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gaurav-prasanna/auditpipe/config"
	"github.com/gaurav-prasanna/auditpipe/core"
	"github.com/gaurav-prasanna/auditpipe/core/fetch"
)

// Global flag variables.
var (
	flagConfig   string
	flagLogLevel string
)

// Shared state built in PersistentPreRunE.
var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "auditpipe",
	Short: "AuditPipe: edge router for the compliance audit catalog",
	Long: `AuditPipe serves a catalog of compliance audit articles from a remote
content store: a home grid, article pages with a purchase call-to-action,
a sitemap, the post-checkout landing page and static legal pages.

Usage:
  auditpipe serve [--config auditpipe.yaml]
  auditpipe export <slug> --pdf`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig(flagConfig)
		if err != nil {
			return err
		}
		if flagLogLevel != "" {
			loaded.Logging.Level = flagLogLevel
		}
		cfg = loaded

		level, err := zapcore.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
		}
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(level)
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a YAML config file (optional)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn or error (overrides config)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore builds the configured content store. The returned close
// function releases its resources.
func openStore(ctx context.Context, c *config.Config) (core.Store, func() error, error) {
	switch c.Store.Driver {
	case config.DriverSQLite:
		s, err := fetch.OpenSQLite(ctx, c.Store.DSN, c.Store.Table)
		if err != nil {
			return nil, nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s := fetch.NewREST(fetch.RESTOptions{
			BaseURL: c.Store.URL,
			Key:     c.Store.Key,
			Table:   c.Store.Table,
			Timeout: c.Store.Timeout,
		})
		return s, s.Close, nil
	}
}
