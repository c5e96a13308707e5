package cli

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/risksharing/replication/internal/columnar"
)

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Display version information",
		Annotations: map[string]string{skipValidation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runVersion(cmd.Context())
		},
	}
}

func (c *CLI) runVersion(ctx context.Context) error {
	info := VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		DuckDB:    "unavailable",
	}
	if codec, err := columnar.Open(); err == nil {
		if v, err := codec.EngineVersion(ctx); err == nil {
			info.DuckDB = v
		}
		codec.Close()
	}

	if c.jsonOutput {
		return c.outputJSON(info)
	}

	c.println("Risksharing CLI")
	c.printf("  Version:    %s\n", info.Version)
	c.printf("  Git Commit: %s\n", info.GitCommit)
	c.printf("  Build Date: %s\n", info.BuildDate)
	c.printf("  Go Version: %s\n", info.GoVersion)
	c.printf("  OS/Arch:    %s/%s\n", info.OS, info.Arch)
	c.printf("  DuckDB:     %s\n", info.DuckDB)
	return nil
}

// VersionInfo represents version information for JSON output.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	DuckDB    string `json:"duckdb"`
}

// SetVersionInfo sets the version information (called from main).
func SetVersionInfo(version, commit, date string) {
	if version != "" {
		Version = version
	}
	if commit != "" {
		GitCommit = commit
	}
	if date != "" {
		BuildDate = date
	}
}

// GetVersionString returns a formatted version string.
func GetVersionString() string {
	return fmt.Sprintf("risksharing version %s (commit: %s, built: %s)",
		Version, GitCommit, BuildDate)
}
