package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/risksharing/replication/internal/bench"
	cerrors "github.com/risksharing/replication/internal/errors"
)

func (c *CLI) newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark log tools",
	}
	cmd.AddCommand(c.newBenchSummarizeCmd())
	return cmd
}

func (c *CLI) newBenchSummarizeCmd() *cobra.Command {
	var input, output string
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize raw benchmark log entries",
		Long: `Summarize a raw benchmark log into a per-target table of run count,
median, maximum and total duration.

Each log line reads "YYYY-MM-DD HH:MM:SS | target | 12s". Lines that do not
parse are skipped.`,
		Annotations: map[string]string{skipValidation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := os.Open(input)
			if err != nil {
				return cerrors.NewPathMissing(input, err)
			}
			defer in.Close()

			records, err := bench.Parse(in)
			if err != nil {
				return err
			}

			out, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			if err := bench.Summarize(out, records, input, time.Now()); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}

			if c.jsonOutput {
				return c.outputJSON(map[string]interface{}{
					"records": len(records),
					"targets": bench.Aggregate(records),
					"output":  output,
				})
			}
			c.printf("Summarized %d records into %s\n", len(records), output)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "raw benchmark log")
	cmd.Flags().StringVar(&output, "output", "", "summary file to write")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
