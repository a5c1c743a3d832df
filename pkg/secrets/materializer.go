package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/strataops/strata/pkg/events"
	"github.com/strataops/strata/pkg/log"
	"github.com/strataops/strata/pkg/metrics"
	"github.com/strataops/strata/pkg/store"
	"github.com/strataops/strata/pkg/types"
)

const (
	// DefaultStagingPath is the base directory for per-instance staging
	DefaultStagingPath = "/run/strata/secrets"

	// readyMarker is the completion side-effect the init barrier observes.
	readyMarker = ".ready"
)

// Materializer copies the namespace credential into a private staging area
// per instance, once, before the instance's main process may be considered
// Ready. Completion is signalled by a marker file; the reconciler flips the
// instance out of SecretPending only after observing it.
type Materializer struct {
	namespace string
	credName  string
	basePath  string
	store     store.Store
	creds     *CredentialStore
	broker    *events.Broker
	interval  time.Duration
	logger    zerolog.Logger
}

// NewMaterializer creates a materializer for one namespace's credential.
func NewMaterializer(namespace, credName, basePath string, st store.Store, creds *CredentialStore, broker *events.Broker, interval time.Duration) (*Materializer, error) {
	if basePath == "" {
		basePath = DefaultStagingPath
	}
	if err := os.MkdirAll(basePath, 0700); err != nil {
		return nil, fmt.Errorf("failed to create staging base directory: %w", err)
	}
	return &Materializer{
		namespace: namespace,
		credName:  credName,
		basePath:  basePath,
		store:     st,
		creds:     creds,
		broker:    broker,
		interval:  interval,
		logger:    log.WithComponent("materializer"),
	}, nil
}

// Run scans for instances waiting on their secret until the context is
// cancelled. Level-triggered: a missed notification is picked up on the
// next tick.
func (m *Materializer) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.MaterializePending()
		case <-ctx.Done():
			return
		}
	}
}

// MaterializePending performs one pass over instances waiting on their
// secret.
func (m *Materializer) MaterializePending() {
	instances, err := m.store.ListInstances(m.namespace)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to list instances")
		return
	}

	for _, inst := range instances {
		if inst.State != types.InstanceStateSecretPending {
			continue
		}
		if m.Materialized(inst.ID) {
			continue // runs once per instance
		}
		if err := m.Materialize(inst); err != nil {
			m.logger.Warn().Err(err).Str("instance", inst.ID).Msg("materialization failed")
		}
	}
}

// Materialize reads the credential and writes it into the instance's
// private staging directory, then drops the completion marker. Failure
// marks the instance Failed; the reconciler retries by replacement, never
// by giving up on the topology.
func (m *Materializer) Materialize(inst *types.Instance) error {
	payload, err := m.creds.Read(m.namespace, m.credName)
	if err != nil {
		metrics.MaterializationsTotal.WithLabelValues("failure").Inc()
		inst.State = types.InstanceStateFailed
		inst.Error = fmt.Sprintf("secret materialization: %v", err)
		if uerr := m.store.UpdateInstance(inst); uerr != nil {
			m.logger.Error().Err(uerr).Str("instance", inst.ID).Msg("failed to mark instance failed")
		}
		return err
	}

	dir := m.StagingDir(inst.ID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, m.credName), payload, 0400); err != nil {
		return fmt.Errorf("failed to write credential: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, readyMarker), nil, 0400); err != nil {
		return fmt.Errorf("failed to write completion marker: %w", err)
	}

	metrics.MaterializationsTotal.WithLabelValues("success").Inc()
	m.broker.Publish(&events.Event{
		Type:      events.EventSecretMaterialized,
		Namespace: m.namespace,
		Tier:      inst.Tier,
		Message:   fmt.Sprintf("credential staged for instance %s", inst.ID),
	})
	m.logger.Info().Str("instance", inst.ID).Str("tier", inst.Tier).Msg("credential materialized")
	return nil
}

// Materialized reports whether the completion marker exists for an
// instance. This is the gate the reconciler checks before clearing
// SecretPending.
func (m *Materializer) Materialized(instanceID string) bool {
	_, err := os.Stat(filepath.Join(m.StagingDir(instanceID), readyMarker))
	return err == nil
}

// Cleanup removes an instance's staging area after termination.
func (m *Materializer) Cleanup(instanceID string) error {
	dir := m.StagingDir(instanceID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to cleanup staging directory: %w", err)
	}
	return nil
}

// StagingDir returns the private staging directory for an instance.
// Directories are keyed by instance ID: no cross-instance sharing.
func (m *Materializer) StagingDir(instanceID string) string {
	return filepath.Join(m.basePath, m.namespace, instanceID)
}
