package cli

import (
	"github.com/spf13/cobra"

	"github.com/risksharing/replication/internal/storage"
)

func (c *CLI) newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the dataset cache",
	}
	cmd.AddCommand(c.newCacheStatusCmd())
	return cmd
}

func (c *CLI) newCacheStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List artifacts recorded in the manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := c.openManifest(ctx)
			if err != nil {
				return err
			}
			if repo == nil {
				c.println("Manifest disabled (manifest.driver: none)")
				return nil
			}
			defer repo.Close()

			records, err := repo.List(ctx)
			if err != nil {
				return err
			}
			return c.printArtifacts(records)
		},
	}
}

func (c *CLI) printArtifacts(records []*storage.Artifact) error {
	if c.jsonOutput {
		return c.outputJSON(map[string]interface{}{
			"store":     c.cfg.Cache.Driver,
			"artifacts": records,
		})
	}
	c.printf("Cache store: %s\n", c.cfg.Cache.Driver)
	if len(records) == 0 {
		c.println("No artifacts recorded")
		return nil
	}
	c.printf("%-20s %-12s %-8s %-8s %8s  %s\n", "RECORDED", "DATASET", "KIND", "STORE", "ROWS", "PATH")
	for _, a := range records {
		c.printf("%-20s %-12s %-8s %-8s %8d  %s\n",
			a.RecordedAt.Format("2006-01-02 15:04:05"), a.Dataset, a.Kind, a.Store, a.Rows, a.LogicalPath)
	}
	return nil
}
