package cli

import (
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/risksharing/replication/internal/cluster"
	"github.com/risksharing/replication/internal/columnar"
	cerrors "github.com/risksharing/replication/internal/errors"
	"github.com/risksharing/replication/internal/frame"
)

func (c *CLI) newClusterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Prepare cluster labels for regressions",
	}
	cmd.AddCommand(c.newClusterPrepareCmd())
	return cmd
}

func (c *CLI) newClusterPrepareCmd() *cobra.Command {
	var (
		primaryPath   string
		secondaryPath string
		country       string
		index         string
		out           string
		required      []string
		keep          []string
	)
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Build the cluster feature table from a feature and a locality table",
		Long: `Build the cluster feature table used for cluster-robust standard errors.

Every required column (default: v) is taken from the primary table when it
has it, and otherwise from the secondary table aligned to the primary index.
The primary table's rows are kept unchanged; --keep restricts the columns.

With --country the primary table is the country's other_features asset and
the secondary its locality asset, read from the survey library. A locality
table that cannot be loaded is reported only if the cluster label is needed.`,
		Example: `  risksharing cluster prepare --primary features.parquet --secondary locality.parquet --index i,t,m
  risksharing cluster prepare --country Uganda --keep Rural --out cluster.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (primaryPath == "") == (country == "") {
				return &cerrors.ReplicationError{
					Code:       cerrors.CodeValidation,
					Message:    "exactly one of --primary or --country is required",
					Suggestion: "pass feature files with --primary/--secondary, or a survey country with --country",
				}
			}
			ctx := cmd.Context()
			codec, err := columnar.Open()
			if err != nil {
				return err
			}
			defer codec.Close()

			var (
				primary, secondary *frame.Table
				opts               = []cluster.Option{cluster.WithRequired(required...)}
			)
			if country != "" {
				ctry := c.library(codec).Country(country)
				if primary, err = ctry.OtherFeatures(ctx); err != nil {
					return err
				}
				locality, lerr := ctry.Locality(ctx)
				if lerr != nil {
					c.debugf("locality for %s unavailable: %v\n", country, lerr)
					opts = append(opts, cluster.WithMissingReason(lerr))
				} else {
					secondary = locality
				}
			} else {
				levels := splitList(index)
				if primary, err = codec.ReadFile(ctx, primaryPath, levels...); err != nil {
					return err
				}
				if secondaryPath != "" {
					if secondary, err = codec.ReadFile(ctx, secondaryPath, levels...); err != nil {
						return err
					}
				}
			}

			result, err := cluster.PrepareClusterFrame(primary, secondary, opts...)
			if err != nil {
				return err
			}
			if len(keep) > 0 {
				if result, err = result.Select(projection(keep, required)...); err != nil {
					return &cerrors.ReplicationError{
						Code:    cerrors.CodeValidation,
						Message: "cannot restrict cluster frame columns",
						Cause:   err,
					}
				}
			}
			if out != "" {
				if err := codec.WriteFile(ctx, out, result); err != nil {
					return err
				}
			}

			missing := 0
			if v, ok := result.Column(cluster.ClusterColumn); ok {
				for _, x := range v {
					if x == nil {
						missing++
					}
				}
			}
			if c.jsonOutput {
				return c.outputJSON(map[string]interface{}{
					"rows":            result.Len(),
					"columns":         result.Columns(),
					"missing_cluster": missing,
					"out":             out,
				})
			}
			c.printf("Cluster frame: %d rows, columns %v\n", result.Len(), result.Columns())
			if missing > 0 {
				c.printf("  %d rows have no %s label\n", missing, cluster.ClusterColumn)
			}
			if out != "" {
				c.printf("Written to %s\n", out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&primaryPath, "primary", "", "feature table (parquet)")
	cmd.Flags().StringVar(&secondaryPath, "secondary", "", "locality table (parquet)")
	cmd.Flags().StringVar(&country, "country", "", "read features and locality for this country from the survey library")
	cmd.Flags().StringVar(&index, "index", "i,t", "comma-separated index levels")
	cmd.Flags().StringVar(&out, "out", "", "write the result to this parquet file")
	cmd.Flags().StringSliceVar(&required, "require", []string{cluster.ClusterColumn}, "columns the result must carry")
	cmd.Flags().StringSliceVar(&keep, "keep", nil, "feature columns to keep besides the required ones (default: all)")
	cmd.MarkFlagsMutuallyExclusive("primary", "country")
	cmd.MarkFlagsMutuallyExclusive("secondary", "country")
	return cmd
}

// projection lists keep followed by the required columns not already in it.
func projection(keep, required []string) []string {
	cols := slices.Clone(keep)
	for _, r := range required {
		if !slices.Contains(cols, r) {
			cols = append(cols, r)
		}
	}
	return cols
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
