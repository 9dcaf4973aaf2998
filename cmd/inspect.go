package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/edge-sitemaps/internal/config"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print the resolved worker configuration",
		Long: `Prints every worker with its modules after inheritance has been applied,
as YAML. Credentials are redacted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := fromContext(cmd.Context())
			if err != nil {
				return err
			}
			workers, err := rt.cfg.Resolve()
			if err != nil {
				return err
			}
			redacted := make([]config.ResolvedWorker, len(workers))
			for i, w := range workers {
				redacted[i] = w.Redacted()
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(map[string]any{"workers": redacted}); err != nil {
				return fmt.Errorf("encode workers: %w", err)
			}
			return enc.Close()
		},
	}
}
