package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/risksharing/replication/internal/frame"
	"github.com/risksharing/replication/internal/shocks"
)

func (c *CLI) newShocksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shocks",
		Short: "Load or build the household shock dataset",
		Long: `Load or build the household shock dataset (var/shocks.parquet).

The dataset is served from the cache when present and constructed from the
survey library when the cache has no artifact. Any other cache failure stops
the command.`,
	}
	cmd.AddCommand(c.newShocksLoadCmd())
	cmd.AddCommand(c.newShocksBuildCmd())
	return cmd
}

func (c *CLI) newShocksLoadCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load the shock dataset, building it on a cache miss",
		Example: `  risksharing shocks load
  risksharing shocks load --out /tmp/shocks.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := c.openSession(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			loader, err := c.shockLoader(s)
			if err != nil {
				return err
			}
			t, prov, err := loader.LoadWithProvenance(ctx)
			if err != nil {
				return err
			}
			if out != "" {
				if err := s.codec.WriteFile(ctx, out, t); err != nil {
					return err
				}
			}
			return c.printShocks(t, string(prov), out)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "also write the dataset to this parquet file")
	return cmd
}

func (c *CLI) newShocksBuildCmd() *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Construct the shock dataset from the survey library",
		Long: `Construct the shock dataset from the survey library, ignoring the cache.

With --write the result is stored in the cache at var/shocks.parquet.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := c.openSession(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			tax, err := shocks.LoadTaxonomy(c.cfg.Taxonomy)
			if err != nil {
				return err
			}
			t, summary, err := shocks.Construct(ctx, c.library(s.codec).Country(c.cfg.Country), tax)
			if err != nil {
				return err
			}
			if err := shocks.Dataset.Check(t); err != nil {
				return err
			}
			if write {
				loader, err := c.shockLoader(s)
				if err != nil {
					return err
				}
				if err := loader.Write(ctx, t); err != nil {
					return err
				}
			}

			if c.jsonOutput {
				return c.outputJSON(map[string]interface{}{
					"country": c.cfg.Country,
					"written": write,
					"summary": summary,
				})
			}
			c.printf("Constructed %d shock reports for %s (%d dropped without a label)\n",
				summary.Rows, c.cfg.Country, summary.Dropped)
			for _, class := range sortedKeys(summary.Classes) {
				c.printf("  %-15s %6d\n", class, summary.Classes[class])
			}
			if len(summary.Pooled) > 0 {
				c.printf("Pooled into %q: %v\n", tax.Other, summary.Pooled)
			}
			if write {
				c.printf("Written to %s (%s)\n", shocks.LogicalPath, s.store.Name())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "store the result in the cache")
	return cmd
}

func (c *CLI) printShocks(t *frame.Table, provenance, out string) error {
	counts := make(map[string]int)
	if labels, ok := t.Column(shocks.ColumnShock); ok {
		for _, v := range labels {
			counts[fmt.Sprint(v)]++
		}
	}

	if c.jsonOutput {
		return c.outputJSON(map[string]interface{}{
			"provenance": provenance,
			"rows":       t.Len(),
			"columns":    t.Columns(),
			"counts":     counts,
			"out":        out,
		})
	}

	c.printf("Shock dataset: %d rows from %s\n", t.Len(), provenance)
	c.printf("Columns: %v\n", t.Columns())
	for _, label := range sortedKeys(counts) {
		c.printf("  %-30s %6d\n", label, counts[label])
	}
	if out != "" {
		c.printf("Written to %s\n", out)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
