// Package cmd defines and implements the CLI commands for the edge-sitemaps executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/edge-sitemaps/internal/app"
	"github.com/JakeFAU/edge-sitemaps/internal/config"
	"github.com/JakeFAU/edge-sitemaps/internal/generator"
	"github.com/JakeFAU/edge-sitemaps/internal/logging"
	"github.com/JakeFAU/edge-sitemaps/internal/storage"
)

// App is the set of services commands use. Tests replace the factory below.
type App interface {
	Close()
	Store() storage.BlobStore
	Publisher() generator.Publisher
	Ledger() generator.RunLedger
}

var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

type runtimeKey struct{}

// runtime is what PersistentPreRunE hands to subcommands.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

func fromContext(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey{}).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("configuration not loaded")
	}
	return rt, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "edge-sitemaps",
		Short: "Builds localized sitemaps and deploys them as edge worker scripts.",
		Long: `edge-sitemaps discovers every localized page of the configured sites from
their listing APIs, computes hreflang alternates, partitions the result into
sitemap documents and uploads them as Cloudflare worker scripts.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey{}, &runtime{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, err := fromContext(cmd.Context()); err == nil {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., /etc/edge-sitemaps, $HOME/.edge-sitemaps)")

	cmd.AddCommand(newGenerateCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newInspectCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
