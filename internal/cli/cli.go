// Package cli provides the command-line interface for the replication toolkit.
// The CLI loads datasets, prepares regression inputs and checks the environment.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/risksharing/replication/internal/config"
	cerrors "github.com/risksharing/replication/internal/errors"
	"github.com/risksharing/replication/internal/observability"
)

// Exit codes. Errors map onto them through errors.ExitCode.
const (
	ExitSuccess    = 0
	ExitValidation = int(cerrors.CodeValidation)
	ExitData       = int(cerrors.CodeData)
	ExitCache      = int(cerrors.CodeCache)
	ExitUpstream   = int(cerrors.CodeUpstream)
	ExitInternal   = int(cerrors.CodeInternal)
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// skipValidation marks commands that must run with an invalid configuration.
const skipValidation = "skip-validation"

// CLI holds the command-line interface state.
type CLI struct {
	rootCmd *cobra.Command
	cfg     *config.Config
	cfgErr  error
	logger  *zap.Logger
	metrics *observability.Metrics

	out    io.Writer
	errOut io.Writer

	// Global flags
	configPath  string
	metricsFile string
	jsonOutput  bool
	quiet       bool
	debug       bool
}

// New creates a new CLI instance.
func New() *CLI {
	cli := &CLI{
		out:     os.Stdout,
		errOut:  os.Stderr,
		logger:  zap.NewNop(),
		metrics: observability.NewMetrics(),
	}
	cli.rootCmd = cli.newRootCmd()
	return cli
}

// SetOutput redirects standard and error output.
func (c *CLI) SetOutput(out, errOut io.Writer) {
	c.out = out
	c.errOut = errOut
}

// SetArgs overrides os.Args[1:].
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// Execute runs the CLI and returns the process exit code.
func (c *CLI) Execute() int {
	err := c.rootCmd.ExecuteContext(context.Background())
	if ferr := c.flushMetrics(); ferr != nil && err == nil {
		err = ferr
	}
	_ = c.logger.Sync()
	if err != nil {
		c.errorf("risksharing: %v\n", err)
		return cerrors.ExitCode(err)
	}
	return ExitSuccess
}

func (c *CLI) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "risksharing",
		Short: "Risk-sharing replication toolkit",
		Long: `risksharing prepares the inputs of the shock regressions.

It provides:
  • Cached loading of the household shock dataset, built from the survey library on a miss
  • Cluster-label preparation for cluster-robust standard errors
  • Synthetic panels and benchmark summaries
  • Environment diagnostics`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initConfig(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: ./risksharing.yaml or ~/.risksharing/risksharing.yaml)")
	cmd.PersistentFlags().StringVar(&c.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile on exit")
	cmd.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "machine-readable JSON output")
	cmd.PersistentFlags().BoolVar(&c.quiet, "quiet", false, "suppress non-essential output")
	cmd.PersistentFlags().BoolVar(&c.debug, "debug", false, "verbose debug logs")

	cmd.AddCommand(c.newShocksCmd())
	cmd.AddCommand(c.newClusterCmd())
	cmd.AddCommand(c.newCacheCmd())
	cmd.AddCommand(c.newPanelCmd())
	cmd.AddCommand(c.newBenchCmd())
	cmd.AddCommand(c.newDoctorCmd())
	cmd.AddCommand(c.newVersionCmd())

	return cmd
}

// initConfig loads and validates the configuration. Commands annotated with
// skipValidation keep running on any configuration failure; the first one is
// kept in cfgErr for them to report.
func (c *CLI) initConfig(cmd *cobra.Command) error {
	tolerant := cmd.Annotations[skipValidation] == "true"

	cfg, err := config.Load(c.configPath)
	if err != nil {
		c.cfgErr = cerrors.NewInvalidConfig("config", err.Error())
		if !tolerant {
			return c.cfgErr
		}
		return nil
	}
	c.cfg = cfg

	// Override with flags
	if c.debug {
		c.cfg.Logging.Level = "debug"
	}

	c.cfgErr = c.cfg.Validate()
	if c.cfgErr != nil && !tolerant {
		return c.cfgErr
	}

	logger, err := observability.NewLogger(observability.LoggingConfig{
		Level:  c.cfg.Logging.Level,
		Format: c.cfg.Logging.Format,
	}, c.errOut)
	if err != nil {
		lerr := cerrors.NewInvalidConfig("logging", err.Error())
		if !tolerant {
			return lerr
		}
		if c.cfgErr == nil {
			c.cfgErr = lerr
		}
		if logger, err = observability.NewLogger(observability.LoggingConfig{}, c.errOut); err != nil {
			return err
		}
	}
	c.logger = logger
	c.debugf("config loaded (cache=%s, manifest=%s)\n", c.cfg.Cache.Driver, c.cfg.Manifest.Driver)
	return nil
}

func (c *CLI) flushMetrics() error {
	if c.metricsFile == "" {
		return nil
	}
	if err := c.metrics.WriteTextfile(c.metricsFile); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// Helper functions for output

func (c *CLI) printf(format string, args ...interface{}) {
	if !c.quiet {
		fmt.Fprintf(c.out, format, args...)
	}
}

func (c *CLI) println(args ...interface{}) {
	if !c.quiet {
		fmt.Fprintln(c.out, args...)
	}
}

func (c *CLI) errorf(format string, args ...interface{}) {
	fmt.Fprintf(c.errOut, format, args...)
}

func (c *CLI) debugf(format string, args ...interface{}) {
	if c.debug {
		fmt.Fprintf(c.errOut, "[DEBUG] "+format, args...)
	}
}

func (c *CLI) outputJSON(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
