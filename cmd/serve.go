package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/edge-sitemaps/internal/generator"
	"github.com/JakeFAU/edge-sitemaps/internal/id/uuid"
	"github.com/JakeFAU/edge-sitemaps/internal/preview"
)

func newServeCmd() *cobra.Command {
	var (
		worker string
		port   int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Build one worker and serve its routes locally",
		Long: `Builds the named worker without uploading it and serves its routing table
over HTTP, answering exactly the paths the deployed worker would.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := fromContext(cmd.Context())
			if err != nil {
				return err
			}
			gen, err := generator.New(generator.Options{
				Config: rt.cfg,
				Worker: worker,
				DryRun: true,
				Logger: rt.logger.Named("generator"),
				IDs:    uuid.New(),
			})
			if err != nil {
				return err
			}
			if worker == "" {
				worker = gen.Workers()[0]
			}
			build, err := gen.Build(cmd.Context(), worker)
			if err != nil {
				return err
			}
			if port == 0 {
				port = rt.cfg.Preview.Port
			}
			srv := preview.NewServer(build.Routes(), rt.logger.Named("preview"))
			return srv.ListenAndServe(cmd.Context(), fmt.Sprintf(":%d", port))
		},
	}
	cmd.Flags().StringVar(&worker, "worker", "", "worker to build (default: first configured)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default: preview.port)")
	return cmd
}
