package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/strataops/strata/pkg/binder"
	"github.com/strataops/strata/pkg/config"
	"github.com/strataops/strata/pkg/events"
	"github.com/strataops/strata/pkg/store"
	"github.com/strataops/strata/pkg/topology"
	"github.com/strataops/strata/pkg/types"
	"github.com/strataops/strata/pkg/volume"
)

var volumeCmd = &cobra.Command{
	Use:   "volume",
	Short: "Manage storage volumes",
}

var volumeAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Register a storage volume",
	Long: `Register a storage volume with the controller so the binder can
satisfy claims against it.

Examples:
  strata volume add vol-a --capacity 5Gi
  strata volume add vol-b --capacity 512Mi --mode ReadWriteOnce`,
	Args: cobra.ExactArgs(1),
	RunE: runVolumeAdd,
}

var volumeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List storage volumes",
	RunE:  runVolumeList,
}

var volumeResetCmd = &cobra.Command{
	Use:   "reset [volume-id]",
	Short: "Wipe a released volume and make it available again",
	Long: `Erase the data of a released volume and return it to the
available pool. A bound volume cannot be reset; release its claim first.`,
	Args: cobra.ExactArgs(1),
	RunE: runVolumeReset,
}

func init() {
	volumeAddCmd.Flags().String("capacity", "1Gi", "volume capacity (e.g. 512Mi, 5Gi)")
	volumeAddCmd.Flags().StringSlice("mode", []string{"ReadWriteOnce"}, "supported access modes")
	volumeCmd.PersistentFlags().String("config", "", "daemon configuration file (TOML)")
	volumeCmd.PersistentFlags().String("namespace", "default", "namespace the binder serves")

	volumeCmd.AddCommand(volumeAddCmd)
	volumeCmd.AddCommand(volumeListCmd)
	volumeCmd.AddCommand(volumeResetCmd)
	rootCmd.AddCommand(volumeCmd)
}

// volumeBinder wires just enough of the stack for volume administration.
func volumeBinder(cmd *cobra.Command) (*binder.Binder, *store.BoltStore, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	st, err := store.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	provider, err := volume.NewLocalProvider(cfg.VolumesDir)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("failed to init volume provider: %w", err)
	}

	namespace, _ := cmd.Flags().GetString("namespace")
	broker := events.NewBroker()
	broker.Start()
	return binder.New(namespace, st, provider, broker, cfg.BindInterval.Duration), st, nil
}

func runVolumeAdd(cmd *cobra.Command, args []string) error {
	capacityStr, _ := cmd.Flags().GetString("capacity")
	capacity, err := topology.ParseCapacity(capacityStr)
	if err != nil {
		return fmt.Errorf("invalid capacity: %w", err)
	}

	modeStrs, _ := cmd.Flags().GetStringSlice("mode")
	modes := make([]types.AccessMode, 0, len(modeStrs))
	for _, m := range modeStrs {
		mode, err := topology.ParseAccessMode(m)
		if err != nil {
			return err
		}
		modes = append(modes, mode)
	}

	bnd, st, err := volumeBinder(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	vol, err := bnd.AddVolume(args[0], capacity, modes)
	if err != nil {
		return fmt.Errorf("failed to add volume: %w", err)
	}
	fmt.Printf("✓ Volume %s registered (%s, %s)\n", vol.Name, capacityStr, vol.ID)
	return nil
}

func runVolumeList(cmd *cobra.Command, args []string) error {
	_, st, err := volumeBinder(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	volumes, err := st.ListVolumes()
	if err != nil {
		return fmt.Errorf("failed to list volumes: %w", err)
	}
	if len(volumes) == 0 {
		fmt.Println("No volumes registered")
		return nil
	}

	fmt.Printf("%-20s %-12s %-10s %-36s %s\n", "NAME", "CAPACITY", "STATE", "ID", "CLAIM")
	for _, vol := range volumes {
		fmt.Printf("%-20s %-12d %-10s %-36s %s\n",
			vol.Name, vol.CapacityBytes, vol.State, vol.ID, vol.ClaimID)
	}
	return nil
}

func runVolumeReset(cmd *cobra.Command, args []string) error {
	bnd, st, err := volumeBinder(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := bnd.AdminReset(args[0]); err != nil {
		return fmt.Errorf("failed to reset volume: %w", err)
	}
	fmt.Printf("✓ Volume %s wiped and available\n", args[0])
	return nil
}
