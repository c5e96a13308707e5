package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/risksharing/replication/internal/columnar"
	"github.com/risksharing/replication/internal/panel"
)

func (c *CLI) newPanelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "panel",
		Short: "Work with synthetic panels",
	}
	cmd.AddCommand(c.newPanelSimulateCmd())
	return cmd
}

func (c *CLI) newPanelSimulateCmd() *cobra.Command {
	opts := panel.DefaultOptions()
	var outDir string
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Generate a seeded synthetic (i, t) panel",
		Long: `Generate a seeded synthetic panel: a feature table (Rural, Shock Share,
Outcome) and a locality table (v). The seed defaults to RISKSHARING_SEED.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("seed") {
				if seed, ok, err := c.cfg.SeedValue(); err != nil {
					return err
				} else if ok {
					opts.Seed = seed
				}
			}
			features, locality, err := panel.Simulate(opts)
			if err != nil {
				return err
			}

			var written []string
			if outDir != "" {
				codec, err := columnar.Open()
				if err != nil {
					return err
				}
				defer codec.Close()
				fpath := filepath.Join(outDir, "features.parquet")
				lpath := filepath.Join(outDir, "locality.parquet")
				if err := codec.WriteFile(cmd.Context(), fpath, features); err != nil {
					return err
				}
				if err := codec.WriteFile(cmd.Context(), lpath, locality); err != nil {
					return err
				}
				written = []string{fpath, lpath}
			}

			if c.jsonOutput {
				return c.outputJSON(map[string]interface{}{
					"seed":     opts.Seed,
					"rows":     features.Len(),
					"entities": opts.Entities,
					"periods":  opts.Periods,
					"files":    written,
				})
			}
			c.printf("Simulated %d entities x %d periods (seed %d)\n", opts.Entities, opts.Periods, opts.Seed)
			for _, p := range written {
				c.printf("  wrote %s\n", p)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Entities, "entities", opts.Entities, "number of households")
	cmd.Flags().IntVar(&opts.Periods, "periods", opts.Periods, "number of periods")
	cmd.Flags().IntVar(&opts.Localities, "localities", opts.Localities, "number of localities")
	cmd.Flags().Float64Var(&opts.Beta, "beta", opts.Beta, "true shock coefficient")
	cmd.Flags().Int64Var(&opts.Seed, "seed", opts.Seed, "random seed")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "write features.parquet and locality.parquet here")
	return cmd
}
