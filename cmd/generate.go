package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/edge-sitemaps/internal/generator"
	"github.com/JakeFAU/edge-sitemaps/internal/id/uuid"
)

func newGenerateCmd() *cobra.Command {
	var (
		dryRun bool
		worker string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Discover pages, build sitemaps and upload worker scripts",
		Long: `Runs every configured worker in order: lists locales and pages for each
module, builds the sitemaps and the sitemap index, assembles one script per
worker unit and uploads it. With --dry-run nothing is uploaded.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := fromContext(cmd.Context())
			if err != nil {
				return err
			}
			services, err := newApp(cmd.Context(), rt.cfg, rt.logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			defer services.Close()

			gen, err := generator.New(generator.Options{
				Config:    rt.cfg,
				Worker:    worker,
				DryRun:    dryRun,
				Logger:    rt.logger.Named("generator"),
				IDs:       uuid.New(),
				Store:     services.Store(),
				Publisher: services.Publisher(),
				Ledger:    services.Ledger(),
			})
			if err != nil {
				return err
			}

			report, err := gen.Run(cmd.Context())
			printReport(cmd.OutOrStdout(), report)
			if err != nil {
				rt.logger.Error("generation failed", zap.Error(err))
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "build everything but skip the upload")
	cmd.Flags().StringVar(&worker, "worker", "", "only process the named worker")
	return cmd
}

func printReport(w io.Writer, report generator.Report) {
	if report.RunID == "" {
		return
	}
	_, _ = fmt.Fprintf(w, "run %s\n", report.RunID)
	for _, wr := range report.Workers {
		_, _ = fmt.Fprintf(w, "  %-20s %-9s modules=%d pages=%d sitemaps=%d dropped=%d units=%d\n",
			wr.Name, wr.Status, wr.Modules, wr.Pages, wr.Sitemaps, wr.Dropped, wr.Units)
		if wr.Err != nil {
			_, _ = fmt.Fprintf(w, "    error: %v\n", wr.Err)
		}
	}
}
