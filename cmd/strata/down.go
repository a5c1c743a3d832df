package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Tear a topology down in reverse dependency order",
	Long: `Tear down the topology declared in a manifest: external
endpoints are removed first so no new traffic is admitted, then the
proxy, backend, and database tiers drain in order, and finally storage
is released. Volume data is retained.

Examples:
  strata down -f topology.yaml
  strata down -f topology.yaml --timeout 2m`,
	RunE: runDown,
}

func init() {
	downCmd.Flags().StringP("file", "f", "", "topology manifest (required)")
	downCmd.Flags().String("config", "", "daemon configuration file (TOML)")
	downCmd.Flags().Duration("timeout", time.Minute, "drain timeout")
	_ = downCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(downCmd)
}

func runDown(cmd *cobra.Command, args []string) error {
	cfg, manifest, err := loadConfigAndManifest(cmd)
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")

	s, err := buildStack(cfg, manifest)
	if err != nil {
		return err
	}
	defer s.close()

	fmt.Printf("Tearing down topology %q...\n", manifest.Metadata.Name)

	// The reconcilers must run so the drain can make progress.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.start(ctx)

	teardownCtx, teardownCancel := context.WithTimeout(ctx, timeout)
	defer teardownCancel()
	if err := s.coord.Teardown(teardownCtx); err != nil {
		return fmt.Errorf("teardown failed: %w", err)
	}

	fmt.Println("✓ Topology torn down (volume data retained)")
	return nil
}
