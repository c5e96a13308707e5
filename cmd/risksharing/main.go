// Package main is the entrypoint for the risksharing CLI.
// The CLI loads the shock dataset, prepares cluster labels for the
// regressions and checks the local environment.
package main

import (
	"os"

	"github.com/risksharing/replication/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, date)
	os.Exit(cli.New().Execute())
}
