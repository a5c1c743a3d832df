package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/strataops/strata/pkg/binder"
	"github.com/strataops/strata/pkg/events"
	"github.com/strataops/strata/pkg/log"
	"github.com/strataops/strata/pkg/metrics"
	"github.com/strataops/strata/pkg/reconciler"
	"github.com/strataops/strata/pkg/registry"
	"github.com/strataops/strata/pkg/secrets"
	"github.com/strataops/strata/pkg/store"
	"github.com/strataops/strata/pkg/topology"
	"github.com/strataops/strata/pkg/types"
)

// drainPollInterval paces the teardown wait for instance drain.
const drainPollInterval = 200 * time.Millisecond

// Coordinator sequences the topology: it seeds the namespace's desired
// state from the manifest, aggregates per-tier convergence into a single
// phase each tick, and drives ordered teardown. It never talks to the
// runtime directly; all control flows through the shared store and the
// tier reconcilers observing it.
type Coordinator struct {
	namespace     string
	store         store.Store
	binder        *binder.Binder
	registry      *registry.Registry
	creds         *secrets.CredentialStore
	broker        *events.Broker
	interval      time.Duration
	degradedAfter int
	logger        zerolog.Logger

	lastPhase    types.TopologyPhase
	belowDesired map[string]int
	degraded     map[string]bool
}

// New creates a coordinator for one namespace. degradedAfter is the
// number of consecutive ticks a tier may sit below its desired count
// before it is reported Degraded.
func New(namespace string, st store.Store, bnd *binder.Binder, reg *registry.Registry, creds *secrets.CredentialStore, broker *events.Broker, interval time.Duration, degradedAfter int) *Coordinator {
	if degradedAfter < 1 {
		degradedAfter = 1
	}
	return &Coordinator{
		namespace:     namespace,
		store:         st,
		binder:        bnd,
		registry:      reg,
		creds:         creds,
		broker:        broker,
		interval:      interval,
		degradedAfter: degradedAfter,
		logger:        log.WithComponent("coordinator").With().Str("namespace", namespace).Logger(),
		belowDesired:  make(map[string]int),
		degraded:      make(map[string]bool),
	}
}

// Provision seeds the namespace's desired state from a validated
// manifest: namespace, credential, tiers, storage claims, and service
// endpoints. It is idempotent, so a controller restart re-runs it safely
// against existing state.
func (c *Coordinator) Provision(manifest *topology.Manifest) error {
	if _, err := c.store.GetNamespace(c.namespace); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to load namespace: %w", err)
		}
		if err := c.store.CreateNamespace(&types.Namespace{Name: c.namespace, CreatedAt: time.Now()}); err != nil {
			return fmt.Errorf("failed to create namespace: %w", err)
		}
	}

	if manifest.Credential.Name != "" {
		if err := c.creds.Ensure(c.namespace, manifest.Credential.Name, manifest.Credential.Value); err != nil {
			return fmt.Errorf("failed to ensure credential: %w", err)
		}
	}

	for _, tier := range manifest.TierEntities() {
		existing, err := c.store.GetTier(c.namespace, tier.Name)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if err := c.store.CreateTier(tier); err != nil {
				return fmt.Errorf("failed to create tier %s: %w", tier.Name, err)
			}
		case err != nil:
			return fmt.Errorf("failed to load tier %s: %w", tier.Name, err)
		default:
			existing.DesiredReplicas = tier.DesiredReplicas
			existing.Image = tier.Image
			if err := c.store.UpdateTier(existing); err != nil {
				return fmt.Errorf("failed to update tier %s: %w", tier.Name, err)
			}
		}

		if tier.Storage != nil {
			if err := c.ensureClaim(tier); err != nil {
				return err
			}
		}
		if _, err := c.registry.EnsureEndpoint(tier); err != nil {
			return fmt.Errorf("failed to ensure endpoint for tier %s: %w", tier.Name, err)
		}
	}

	c.logger.Info().Int("tiers", len(manifest.Tiers)).Msg("topology provisioned")
	return nil
}

func (c *Coordinator) ensureClaim(tier *types.Tier) error {
	name := reconciler.ClaimName(tier.Name)
	if _, err := c.store.GetClaimByName(c.namespace, name); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to load claim %s: %w", name, err)
	}

	claim := &types.StorageClaim{
		ID:            uuid.New().String(),
		Name:          name,
		Namespace:     c.namespace,
		Tier:          tier.Name,
		CapacityBytes: tier.Storage.CapacityBytes,
		AccessModes:   []types.AccessMode{tier.Storage.AccessMode},
		Phase:         types.ClaimPhasePending,
		CreatedAt:     time.Now(),
	}
	if err := c.store.CreateClaim(claim); err != nil {
		return fmt.Errorf("failed to create claim %s: %w", name, err)
	}
	c.logger.Info().Str("claim", name).Str("tier", tier.Name).Msg("storage claim created")
	return nil
}

// Run executes coordination ticks until the context is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Tick(); err != nil {
				c.logger.Error().Err(err).Msg("coordination tick failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Tick performs one coordination pass: aggregate per-tier status, derive
// the topology phase, and persist both for the status surface.
func (c *Coordinator) Tick() error {
	tiers, err := c.store.ListTiers(c.namespace)
	if err != nil {
		return fmt.Errorf("failed to list tiers: %w", err)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Name < tiers[j].Name })

	statuses := make([]types.TierStatus, 0, len(tiers))
	for _, tier := range tiers {
		status, err := c.tierStatus(tier)
		if err != nil {
			return err
		}
		statuses = append(statuses, status)
	}

	phase := c.derivePhase(tiers, statuses)
	if phase != c.lastPhase {
		c.broker.Publish(&events.Event{
			Type:      events.EventTopologyPhaseChanged,
			Namespace: c.namespace,
			Message:   fmt.Sprintf("topology phase %s", phase),
		})
		c.logger.Info().Str("phase", string(phase)).Msg("topology phase changed")
		c.lastPhase = phase
	}
	if phase == types.PhaseDegraded {
		metrics.TopologyDegraded.Set(1)
	} else {
		metrics.TopologyDegraded.Set(0)
	}

	return c.store.PutTopologyStatus(&types.TopologyStatus{
		Namespace: c.namespace,
		Phase:     phase,
		Tiers:     statuses,
		UpdatedAt: time.Now(),
	})
}

// tierStatus counts one tier's instances and updates its degraded
// tracking. A tier goes Degraded after sitting below its desired count
// for degradedAfter consecutive ticks, and recovers the moment it is
// back at full strength.
func (c *Coordinator) tierStatus(tier *types.Tier) (types.TierStatus, error) {
	instances, err := c.store.ListInstancesByTier(c.namespace, tier.Name)
	if err != nil {
		return types.TierStatus{}, fmt.Errorf("failed to list instances for tier %s: %w", tier.Name, err)
	}

	status := types.TierStatus{Tier: tier.Name, Desired: tier.DesiredReplicas}
	for _, inst := range instances {
		switch inst.State {
		case types.InstanceStateReady:
			status.Ready++
		case types.InstanceStateFailed:
			status.Failed++
		}
	}

	metrics.TierReadyReplicas.WithLabelValues(tier.Name).Set(float64(status.Ready))
	metrics.TierDesiredReplicas.WithLabelValues(tier.Name).Set(float64(tier.DesiredReplicas))

	if status.Ready < status.Desired {
		c.belowDesired[tier.Name]++
	} else {
		c.belowDesired[tier.Name] = 0
	}

	wasDegraded := c.degraded[tier.Name]
	isDegraded := c.belowDesired[tier.Name] >= c.degradedAfter
	c.degraded[tier.Name] = isDegraded
	status.Degraded = isDegraded

	if isDegraded {
		status.Message = fmt.Sprintf("%d/%d ready", status.Ready, status.Desired)
		if !wasDegraded {
			c.broker.Publish(&events.Event{
				Type:      events.EventTierDegraded,
				Namespace: c.namespace,
				Tier:      tier.Name,
				Message:   status.Message,
			})
			c.logger.Warn().Str("tier", tier.Name).Str("ready", status.Message).Msg("tier degraded")
		}
	} else if wasDegraded {
		c.broker.Publish(&events.Event{
			Type:      events.EventTierRecovered,
			Namespace: c.namespace,
			Tier:      tier.Name,
		})
		c.logger.Info().Str("tier", tier.Name).Msg("tier recovered")
	}
	return status, nil
}

// derivePhase folds tier statuses into the topology phase ladder.
// Serving is steady-state: it is re-derived every tick and regresses the
// moment a lower rung no longer holds.
func (c *Coordinator) derivePhase(tiers []*types.Tier, statuses []types.TierStatus) types.TopologyPhase {
	for _, s := range statuses {
		if s.Degraded {
			return types.PhaseDegraded
		}
	}

	serving := true
	for _, s := range statuses {
		if s.Ready < s.Desired {
			serving = false
			break
		}
	}
	if serving {
		return types.PhaseServing
	}

	if !c.storageBound(tiers) {
		return types.PhaseProvisioning
	}
	if !c.secretsReady(tiers) {
		return types.PhaseStorageBound
	}
	return types.PhaseSecretsReady
}

// storageBound reports whether every required storage claim is Bound.
func (c *Coordinator) storageBound(tiers []*types.Tier) bool {
	for _, tier := range tiers {
		if tier.Storage == nil || !tier.Storage.Required {
			continue
		}
		claim, err := c.store.GetClaimByName(c.namespace, reconciler.ClaimName(tier.Name))
		if err != nil || claim.Phase != types.ClaimPhaseBound {
			return false
		}
	}
	return true
}

// secretsReady reports whether every secret-requiring tier has at least
// one instance past the materialization barrier and none still awaiting
// it.
func (c *Coordinator) secretsReady(tiers []*types.Tier) bool {
	for _, tier := range tiers {
		if !tier.SecretRequired {
			continue
		}
		instances, err := c.store.ListInstancesByTier(c.namespace, tier.Name)
		if err != nil {
			return false
		}
		past := 0
		for _, inst := range instances {
			switch inst.State {
			case types.InstanceStateSecretPending:
				return false
			case types.InstanceStatePending, types.InstanceStateReady:
				past++
			}
		}
		if past == 0 {
			return false
		}
	}
	return true
}

// Teardown dismantles the topology in reverse dependency order: external
// endpoints go first so no new traffic is admitted, then the proxy and
// backend tiers drain, then the database, and finally storage is
// released with its data retained. The namespace record is removed last.
func (c *Coordinator) Teardown(ctx context.Context) error {
	c.setPhase(types.PhaseTearingDown)

	tiers, err := c.store.ListTiers(c.namespace)
	if err != nil {
		return fmt.Errorf("failed to list tiers: %w", err)
	}

	endpoints, err := c.store.ListEndpoints(c.namespace)
	if err != nil {
		return fmt.Errorf("failed to list endpoints: %w", err)
	}
	for _, ep := range endpoints {
		if ep.Visibility != types.VisibilityExternal {
			continue
		}
		if err := c.registry.Remove(ep.Name); err != nil {
			return fmt.Errorf("failed to remove endpoint %s: %w", ep.Name, err)
		}
	}

	for _, kind := range []types.TierKind{types.TierKindProxy, types.TierKindBackend, types.TierKindDatabase} {
		for _, tier := range tiers {
			if tier.Kind != kind {
				continue
			}
			if err := c.drainTier(ctx, tier); err != nil {
				return err
			}
		}
	}

	for _, ep := range endpoints {
		if ep.Visibility == types.VisibilityExternal {
			continue
		}
		if err := c.registry.Remove(ep.Name); err != nil {
			return fmt.Errorf("failed to remove endpoint %s: %w", ep.Name, err)
		}
	}

	claims, err := c.store.ListClaims(c.namespace)
	if err != nil {
		return fmt.Errorf("failed to list claims: %w", err)
	}
	for _, claim := range claims {
		if err := c.binder.Release(claim.ID); err != nil {
			return fmt.Errorf("failed to release claim %s: %w", claim.Name, err)
		}
	}

	if err := c.store.DeleteNamespace(c.namespace); err != nil {
		return fmt.Errorf("failed to delete namespace: %w", err)
	}

	c.broker.Publish(&events.Event{
		Type:      events.EventTopologyPhaseChanged,
		Namespace: c.namespace,
		Message:   fmt.Sprintf("topology phase %s", types.PhaseDown),
	})
	c.logger.Info().Msg("topology torn down, volume data retained")
	return nil
}

// drainTier scales one tier to zero and waits for its reconciler to
// terminate every instance.
func (c *Coordinator) drainTier(ctx context.Context, tier *types.Tier) error {
	tier.DesiredReplicas = 0
	if err := c.store.UpdateTier(tier); err != nil {
		return fmt.Errorf("failed to scale down tier %s: %w", tier.Name, err)
	}
	c.logger.Info().Str("tier", tier.Name).Msg("draining tier")

	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	for {
		instances, err := c.store.ListInstancesByTier(c.namespace, tier.Name)
		if err != nil {
			return fmt.Errorf("failed to list instances for tier %s: %w", tier.Name, err)
		}
		if len(instances) == 0 {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("drain of tier %s interrupted: %w", tier.Name, ctx.Err())
		}
	}
}

func (c *Coordinator) setPhase(phase types.TopologyPhase) {
	c.lastPhase = phase
	c.broker.Publish(&events.Event{
		Type:      events.EventTopologyPhaseChanged,
		Namespace: c.namespace,
		Message:   fmt.Sprintf("topology phase %s", phase),
	})
	status := &types.TopologyStatus{Namespace: c.namespace, Phase: phase, UpdatedAt: time.Now()}
	if err := c.store.PutTopologyStatus(status); err != nil {
		c.logger.Error().Err(err).Msg("failed to persist topology status")
	}
}
