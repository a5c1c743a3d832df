package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Strata - Tiered service topology controller",
	Long: `Strata stands up a proxy/backend/database topology inside a
namespace and keeps it converged: storage is bound before the database
starts, secrets are materialized before dependent tiers serve, and
endpoints only ever route to ready instances.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Strata version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
}
