package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/strataops/strata/pkg/api"
	"github.com/strataops/strata/pkg/binder"
	"github.com/strataops/strata/pkg/config"
	"github.com/strataops/strata/pkg/coordinator"
	"github.com/strataops/strata/pkg/events"
	"github.com/strataops/strata/pkg/log"
	"github.com/strataops/strata/pkg/reconciler"
	"github.com/strataops/strata/pkg/registry"
	"github.com/strataops/strata/pkg/runtime"
	"github.com/strataops/strata/pkg/secrets"
	"github.com/strataops/strata/pkg/store"
	"github.com/strataops/strata/pkg/topology"
	"github.com/strataops/strata/pkg/volume"
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Bring a topology up and keep it converged",
	Long: `Load a topology manifest, provision its namespace, and run the
control loops until interrupted.

Examples:
  # Bring up a topology with the default configuration
  strata up -f topology.yaml

  # Override the daemon configuration
  strata up -f topology.yaml --config /etc/strata/strata.toml`,
	RunE: runUp,
}

func init() {
	upCmd.Flags().StringP("file", "f", "", "topology manifest (required)")
	upCmd.Flags().String("config", "", "daemon configuration file (TOML)")
	_ = upCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(upCmd)
}

// stack is the wired control plane for one namespace.
type stack struct {
	cfg         *config.Config
	store       *store.BoltStore
	rt          runtime.Runtime
	broker      *events.Broker
	binder      *binder.Binder
	mat         *secrets.Materializer
	registry    *registry.Registry
	coord       *coordinator.Coordinator
	reconcilers []*reconciler.Reconciler
	server      *api.Server
}

// buildStack wires every component against the shared store. The
// manifest must already be validated.
func buildStack(cfg *config.Config, manifest *topology.Manifest) (*stack, error) {
	namespace := manifest.Metadata.Name

	st, err := store.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	provider, err := volume.NewLocalProvider(cfg.VolumesDir)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to init volume provider: %w", err)
	}

	seed := cfg.CredentialSeed
	if seed == "" {
		seed = "strata/" + namespace
	}
	creds, err := secrets.NewCredentialStoreFromSeed(st, seed)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to init credential store: %w", err)
	}

	broker := events.NewBroker()
	rt := runtime.NewMemoryRuntime()
	bnd := binder.New(namespace, st, provider, broker, cfg.BindInterval.Duration)
	reg := registry.New(namespace, st, broker, cfg.ExternalPortMin, cfg.ExternalPortMax)

	var mat *secrets.Materializer
	if manifest.Credential.Name != "" {
		mat, err = secrets.NewMaterializer(namespace, manifest.Credential.Name, cfg.SecretsDir, st, creds, broker, cfg.MaterializeInterval.Duration)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to init materializer: %w", err)
		}
	}

	backoff := reconciler.BackoffConfig{
		InitialDelay: cfg.BackoffInitial.Duration,
		MaxDelay:     cfg.BackoffMax.Duration,
		Multiplier:   2.0,
		Jitter:       true,
	}
	var reconcilers []*reconciler.Reconciler
	for _, tier := range manifest.TierEntities() {
		reconcilers = append(reconcilers, reconciler.New(
			namespace, tier.Name, st, rt, provider, mat, broker, cfg.ReconcileInterval.Duration, backoff,
		))
	}

	return &stack{
		cfg:         cfg,
		store:       st,
		rt:          rt,
		broker:      broker,
		binder:      bnd,
		mat:         mat,
		registry:    reg,
		coord:       coordinator.New(namespace, st, bnd, reg, creds, broker, cfg.CoordinateInterval.Duration, cfg.DegradedAfter),
		reconcilers: reconcilers,
		server:      api.New(namespace, cfg.ListenAddr, st, reg, broker),
	}, nil
}

// start launches every loop. The returned channel carries a fatal server
// error, if any.
func (s *stack) start(ctx context.Context) <-chan error {
	s.broker.Start()
	go s.binder.Run(ctx)
	if s.mat != nil {
		go s.mat.Run(ctx)
	}
	for _, r := range s.reconcilers {
		go r.Run(ctx)
	}
	go s.coord.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Start(ctx); err != nil {
			errCh <- fmt.Errorf("status server error: %w", err)
		}
	}()
	return errCh
}

func (s *stack) close() {
	s.broker.Stop()
	if err := s.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
	}
}

func loadConfigAndManifest(cmd *cobra.Command) (*config.Config, *topology.Manifest, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})

	file, _ := cmd.Flags().GetString("file")
	manifest, err := topology.Load(file)
	if err != nil {
		// Malformed topology input is the one fatal startup condition.
		return nil, nil, fmt.Errorf("invalid topology manifest: %w", err)
	}
	return cfg, manifest, nil
}

func runUp(cmd *cobra.Command, args []string) error {
	cfg, manifest, err := loadConfigAndManifest(cmd)
	if err != nil {
		return err
	}

	s, err := buildStack(cfg, manifest)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.coord.Provision(manifest); err != nil {
		return fmt.Errorf("failed to provision topology: %w", err)
	}

	fmt.Printf("Topology %q provisioned\n", manifest.Metadata.Name)
	fmt.Printf("  Tiers: %d\n", len(manifest.Tiers))
	fmt.Printf("  Status API: %s\n", cfg.ListenAddr)
	fmt.Println()
	fmt.Println("Controller is running. Press Ctrl+C to stop.")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := s.start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
	}

	cancel()
	fmt.Println("Shutdown complete (topology state retained; use 'strata down' to tear down)")
	return nil
}
