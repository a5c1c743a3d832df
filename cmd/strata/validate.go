package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/strataops/strata/pkg/topology"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a topology manifest",
	Long: `Parse and validate a topology manifest without provisioning
anything.

Examples:
  strata validate -f topology.yaml`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringP("file", "f", "", "topology manifest (required)")
	_ = validateCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	manifest, err := topology.Load(file)
	if err != nil {
		return fmt.Errorf("invalid topology manifest: %w", err)
	}

	fmt.Printf("✓ Manifest is valid\n")
	fmt.Printf("  Namespace: %s\n", manifest.Metadata.Name)
	for _, tier := range manifest.Tiers {
		extra := ""
		if tier.SecretRequired {
			extra += " secret"
		}
		if tier.Storage != nil {
			extra += fmt.Sprintf(" storage=%s", tier.Storage.Capacity)
		}
		if tier.ExposeExternally {
			extra += " external"
		}
		fmt.Printf("  Tier %s (%s): replicas=%d port=%d%s\n",
			tier.Name, tier.Kind, tier.Replicas, tier.Port, extra)
	}
	return nil
}
