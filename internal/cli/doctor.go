package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/risksharing/replication/internal/cache"
	"github.com/risksharing/replication/internal/columnar"
	cerrors "github.com/risksharing/replication/internal/errors"
)

func (c *CLI) newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run environment diagnostics",
		Long: `Run environment diagnostics.

Checks:
  - configuration and seed
  - survey library checkout
  - parquet engine
  - cache store
  - artifact manifest`,
		Annotations: map[string]string{skipValidation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDoctor(cmd.Context())
		},
	}
}

func (c *CLI) runDoctor(ctx context.Context) error {
	if !c.jsonOutput {
		c.println("Risksharing Environment Diagnostics")
		c.println("===================================")
		c.println("")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	checks := []DiagnosticCheck{c.checkConfig()}
	if c.cfgErr == nil {
		checks = append(checks,
			c.checkLibrary(),
			c.checkParquet(ctx),
			c.checkCache(ctx),
			c.checkManifest(ctx),
		)
	}

	allPassed := true
	for _, check := range checks {
		if !check.Passed {
			allPassed = false
		}
		if !c.jsonOutput {
			c.printCheck(check)
		}
	}

	if c.jsonOutput {
		if err := c.outputJSON(map[string]interface{}{
			"checks":     checks,
			"all_passed": allPassed,
		}); err != nil {
			return err
		}
	} else {
		c.println("")
		if allPassed {
			c.println("✓ All checks passed")
		} else {
			c.println("✗ Some checks failed - see above for details")
		}
	}

	if !allPassed {
		return &cerrors.ReplicationError{
			Code:    cerrors.CodeValidation,
			Message: "environment checks failed",
		}
	}
	return nil
}

// DiagnosticCheck represents a single diagnostic check result.
type DiagnosticCheck struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (c *CLI) printCheck(check DiagnosticCheck) {
	status := "✗"
	if check.Passed {
		status = "✓"
	}
	c.printf("%s %s: %s\n", status, check.Name, check.Message)
	if check.Details != "" && !check.Passed {
		c.printf("  → %s\n", check.Details)
	}
}

func (c *CLI) checkConfig() DiagnosticCheck {
	check := DiagnosticCheck{Name: "Configuration"}

	if c.cfgErr != nil {
		check.Message = "Invalid configuration"
		check.Details = c.cfgErr.Error()
		return check
	}
	if c.cfg == nil {
		check.Message = "No configuration loaded"
		check.Details = "Create risksharing.yaml or use --config flag"
		return check
	}

	check.Passed = true
	seed := "unset"
	if n, ok, _ := c.cfg.SeedValue(); ok {
		seed = fmt.Sprintf("%d", n)
	}
	check.Message = fmt.Sprintf("cache=%s manifest=%s country=%s seed=%s",
		c.cfg.Cache.Driver, c.cfg.Manifest.Driver, c.cfg.Country, seed)
	return check
}

func (c *CLI) checkLibrary() DiagnosticCheck {
	check := DiagnosticCheck{Name: "Survey Library"}

	lib := c.library(nil)
	if err := lib.Check(); err != nil {
		check.Message = fmt.Sprintf("Not found at %s", lib.Root)
		check.Details = "Check out the survey library (editable install) or set data.library"
		return check
	}
	countries, err := lib.Countries()
	if err != nil {
		check.Message = err.Error()
		return check
	}

	check.Passed = true
	check.Message = fmt.Sprintf("%s (%d countries)", lib.Root, len(countries))
	return check
}

func (c *CLI) checkParquet(ctx context.Context) DiagnosticCheck {
	check := DiagnosticCheck{Name: "Parquet Engine"}

	codec, err := columnar.Open()
	if err != nil {
		check.Message = "DuckDB unavailable"
		check.Details = err.Error()
		return check
	}
	defer codec.Close()

	v, err := codec.EngineVersion(ctx)
	if err != nil {
		check.Message = "DuckDB not responding"
		check.Details = err.Error()
		return check
	}
	check.Passed = true
	check.Message = fmt.Sprintf("DuckDB %s available", v)
	return check
}

func (c *CLI) checkCache(ctx context.Context) DiagnosticCheck {
	check := DiagnosticCheck{Name: "Cache Store"}

	switch c.cfg.Cache.Driver {
	case "s3":
		store, err := c.openStore(ctx, nil)
		if err != nil {
			check.Message = "Cannot configure S3 client"
			check.Details = err.Error()
			return check
		}
		if err := store.(*cache.S3Store).CheckBucket(ctx); err != nil {
			check.Message = fmt.Sprintf("Cannot reach bucket %s", c.cfg.Cache.S3.Bucket)
			check.Details = err.Error()
			return check
		}
		check.Message = fmt.Sprintf("Bucket %s reachable", c.cfg.Cache.S3.Bucket)
	default:
		dir := c.cfg.CachePath()
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			check.Message = fmt.Sprintf("Cache directory %s missing", dir)
			check.Details = "Create it or set cache.dir"
			return check
		}
		check.Message = fmt.Sprintf("Directory %s", dir)
	}
	check.Passed = true
	return check
}

func (c *CLI) checkManifest(ctx context.Context) DiagnosticCheck {
	check := DiagnosticCheck{Name: "Artifact Manifest"}

	repo, err := c.openManifest(ctx)
	if err != nil {
		check.Message = "Cannot open manifest"
		check.Details = err.Error()
		return check
	}
	if repo == nil {
		check.Passed = true
		check.Message = "Disabled"
		return check
	}
	defer repo.Close()

	if err := repo.CheckConnectivity(ctx); err != nil {
		check.Message = "Manifest unreachable"
		check.Details = err.Error()
		return check
	}
	check.Passed = true
	check.Message = fmt.Sprintf("%s reachable", c.cfg.Manifest.Driver)
	return check
}
