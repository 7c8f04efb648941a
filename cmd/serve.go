package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gaurav-prasanna/auditpipe/core/render"
	"github.com/gaurav-prasanna/auditpipe/server"
	"github.com/gaurav-prasanna/auditpipe/site"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP router",
	Long: `Serve starts the HTTP router on server.addr (or LISTEN_ADDR) and runs
until SIGINT or SIGTERM, then drains in-flight requests.

Missing store credentials do not stop the server: every route answers 500
with a configuration message until STORE_URL and STORE_KEY are set.

Examples:
  auditpipe serve
  STORE_URL=https://xyz.supabase.co STORE_KEY=... auditpipe serve --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	layout, err := render.LoadLayout(cfg.Site.LayoutPath)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := cfg.RequireStore(); err != nil {
		logger.Warn("store is not configured; every route will answer 500", zap.Error(err))
	}
	logger.Info("starting auditpipe", zap.String("config", cfg.String()))

	srv := server.New(cfg, store, site.FromConfig(cfg, layout), logger)
	return srv.Run(ctx)
}
