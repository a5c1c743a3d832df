package reconciler

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/strataops/strata/pkg/events"
	"github.com/strataops/strata/pkg/log"
	"github.com/strataops/strata/pkg/metrics"
	"github.com/strataops/strata/pkg/runtime"
	"github.com/strataops/strata/pkg/secrets"
	"github.com/strataops/strata/pkg/store"
	"github.com/strataops/strata/pkg/types"
	"github.com/strataops/strata/pkg/volume"
)

// Reconciler drives one tier's observed replica count toward its declared
// count. It is level-triggered: every tick re-derives everything from the
// store and the runtime, so missed events cost at most one interval.
type Reconciler struct {
	namespace string
	tierName  string
	store     store.Store
	rt        runtime.Runtime
	vols      volume.Provider
	mat       *secrets.Materializer
	broker    *events.Broker
	interval  time.Duration
	backoff   BackoffConfig
	logger    zerolog.Logger
	rng       *rand.Rand

	// Crash-loop damping, keyed by the slot an instance replacement
	// occupies rather than the instance's own ID: a replacement inherits
	// its predecessor's attempt count.
	failures     int
	nextCreateAt time.Time
}

// New creates a reconciler for one tier of a namespace.
func New(namespace, tierName string, st store.Store, rt runtime.Runtime, vols volume.Provider, mat *secrets.Materializer, broker *events.Broker, interval time.Duration, backoff BackoffConfig) *Reconciler {
	return &Reconciler{
		namespace: namespace,
		tierName:  tierName,
		store:     st,
		rt:        rt,
		vols:      vols,
		mat:       mat,
		broker:    broker,
		interval:  interval,
		backoff:   backoff,
		logger:    log.WithComponent("reconciler").With().Str("tier", tierName).Logger(),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run reconciles until the context is cancelled. Cancellation is
// cooperative: the current pass finishes, then the loop stops creating.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Reconcile(ctx); err != nil {
				r.logger.Error().Err(err).Msg("reconcile cycle failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Reconcile performs one reconciliation cycle for the tier.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDurationVec(metrics.ReconcileDuration, r.tierName)
		metrics.ReconcileCyclesTotal.WithLabelValues(r.tierName).Inc()
	}()

	tier, err := r.store.GetTier(r.namespace, r.tierName)
	if err != nil {
		return fmt.Errorf("failed to load tier: %w", err)
	}

	instances, err := r.store.ListInstancesByTier(r.namespace, r.tierName)
	if err != nil {
		return fmt.Errorf("failed to list instances: %w", err)
	}

	live := 0
	for _, inst := range instances {
		switch inst.State {
		case types.InstanceStateTerminating:
			r.finishTermination(ctx, inst)
		case types.InstanceStateFailed:
			r.sweepFailed(ctx, inst)
		default:
			if r.observe(ctx, tier, inst) {
				live++
			}
		}
	}

	if live > tier.DesiredReplicas {
		r.scaleDown(ctx, instances, live-tier.DesiredReplicas)
	} else if live < tier.DesiredReplicas {
		r.scaleUp(ctx, tier, tier.DesiredReplicas-live)
	}

	r.updateGauges(tier)
	return nil
}

// observe refreshes one live instance against the runtime and its gates.
// Returns whether the instance still counts toward the replica total.
func (r *Reconciler) observe(ctx context.Context, tier *types.Tier, inst *types.Instance) bool {
	status, err := r.rt.InstanceStatus(ctx, inst.RuntimeID)
	if err != nil {
		r.logger.Warn().Err(err).Str("instance", inst.ID).Msg("runtime status unavailable")
		return true // transient, keep counting until proven dead
	}

	if status.State == runtime.StateUnknown {
		// The runtime cannot account for the instance. Transient: keep
		// counting rather than inventing an exit code.
		r.logger.Debug().Str("instance", inst.ID).Msg("runtime status unknown")
		return true
	}

	if status.State != runtime.StateRunning {
		// Unexpected exit: the self-healing contract. Mark failed now,
		// sweep and replace on the next pass.
		inst.State = types.InstanceStateFailed
		inst.ExitCode = status.ExitCode
		inst.Error = fmt.Sprintf("process exited with code %d", status.ExitCode)
		inst.FinishedAt = time.Now()
		if err := r.store.UpdateInstance(inst); err != nil {
			r.logger.Error().Err(err).Str("instance", inst.ID).Msg("failed to mark instance failed")
		}
		metrics.InstancesFailed.WithLabelValues(r.tierName).Inc()
		r.broker.Publish(&events.Event{
			Type:      events.EventInstanceFailed,
			Namespace: r.namespace,
			Tier:      r.tierName,
			Message:   fmt.Sprintf("instance %s exited with code %d", inst.ID, status.ExitCode),
		})
		r.logger.Warn().Str("instance", inst.ID).Int("exit_code", status.ExitCode).Msg("instance crashed")
		return false
	}

	if inst.State == types.InstanceStateReady {
		return true
	}

	// Gating: Ready requires the secret barrier and the storage binding,
	// both enforced as state, never as wall-clock delay.
	if inst.State == types.InstanceStateSecretPending {
		if r.mat == nil || !r.mat.Materialized(inst.ID) {
			return true
		}
		inst.State = types.InstanceStatePending
	}

	if !r.storageGateOpen(tier) {
		if err := r.store.UpdateInstance(inst); err != nil {
			r.logger.Error().Err(err).Str("instance", inst.ID).Msg("failed to update instance")
		}
		return true
	}

	inst.State = types.InstanceStateReady
	inst.ReadyAt = time.Now()
	if err := r.store.UpdateInstance(inst); err != nil {
		r.logger.Error().Err(err).Str("instance", inst.ID).Msg("failed to mark instance ready")
		return true
	}
	r.failures = 0
	r.broker.Publish(&events.Event{
		Type:      events.EventInstanceReady,
		Namespace: r.namespace,
		Tier:      r.tierName,
		Message:   fmt.Sprintf("instance %s ready", inst.ID),
	})
	r.logger.Info().Str("instance", inst.ID).Msg("instance ready")
	return true
}

// storageGateOpen reports whether the tier's storage requirement (if any)
// is satisfied by a bound claim.
func (r *Reconciler) storageGateOpen(tier *types.Tier) bool {
	if tier.Storage == nil || !tier.Storage.Required {
		return true
	}
	claim, err := r.store.GetClaimByName(r.namespace, ClaimName(tier.Name))
	if err != nil {
		return false
	}
	return claim.Phase == types.ClaimPhaseBound
}

func (r *Reconciler) scaleUp(ctx context.Context, tier *types.Tier, deficit int) {
	if ctx.Err() != nil {
		return // cancelled: stop creating
	}
	now := time.Now()
	if now.Before(r.nextCreateAt) {
		return // crash-loop damping window still open
	}

	for i := 0; i < deficit; i++ {
		if err := r.createInstance(ctx, tier); err != nil {
			r.failures++
			delay := NextBackoffDelay(r.backoff, r.failures, r.rng)
			r.nextCreateAt = time.Now().Add(delay)
			r.logger.Warn().Err(err).Dur("retry_in", delay).Msg("instance creation failed")
			return
		}
	}
}

func (r *Reconciler) createInstance(ctx context.Context, tier *types.Tier) error {
	id := uuid.New().String()

	mounts := map[string]string{}
	if tier.SecretRequired && r.mat != nil {
		mounts[r.mat.StagingDir(id)] = "/run/secrets"
	}
	if tier.Storage != nil && r.vols != nil {
		if claim, err := r.store.GetClaimByName(r.namespace, ClaimName(tier.Name)); err == nil && claim.Phase == types.ClaimPhaseBound {
			// Only the data directory is exposed; the volume root holds
			// provider bookkeeping the workload must not see.
			mounts[r.vols.DataPath(claim.VolumeID)] = "/data"
		}
	}

	created, err := r.rt.CreateInstance(ctx, runtime.CreateSpec{
		Namespace: r.namespace,
		Tier:      tier.Name,
		Image:     tier.Image,
		Port:      tier.Port,
		Mounts:    mounts,
	})
	if err != nil {
		return fmt.Errorf("runtime create: %w", err)
	}

	state := types.InstanceStatePending
	if tier.SecretRequired {
		state = types.InstanceStateSecretPending
	}
	inst := &types.Instance{
		ID:        id,
		Tier:      tier.Name,
		Namespace: r.namespace,
		RuntimeID: created.ID,
		State:     state,
		Address:   created.Address,
		Port:      tier.Port,
		CreatedAt: time.Now(),
	}
	if err := r.store.CreateInstance(inst); err != nil {
		// Half-created: tear the runtime instance down rather than
		// orphaning it.
		_ = r.rt.TerminateInstance(ctx, created.ID)
		return err
	}

	metrics.InstancesCreated.WithLabelValues(r.tierName).Inc()
	r.broker.Publish(&events.Event{
		Type:      events.EventInstanceCreated,
		Namespace: r.namespace,
		Tier:      r.tierName,
		Message:   fmt.Sprintf("instance %s created", inst.ID),
	})
	r.logger.Info().Str("instance", inst.ID).Str("state", string(state)).Msg("instance created")
	return nil
}

// scaleDown marks the oldest excess instances Terminating.
func (r *Reconciler) scaleDown(ctx context.Context, instances []*types.Instance, excess int) {
	var live []*types.Instance
	for _, inst := range instances {
		if inst.Live() {
			live = append(live, inst)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		return live[i].CreatedAt.Before(live[j].CreatedAt)
	})

	for i := 0; i < excess && i < len(live); i++ {
		inst := live[i]
		inst.State = types.InstanceStateTerminating
		if err := r.store.UpdateInstance(inst); err != nil {
			r.logger.Error().Err(err).Str("instance", inst.ID).Msg("failed to mark instance terminating")
			continue
		}
		r.finishTermination(ctx, inst)
	}
}

func (r *Reconciler) finishTermination(ctx context.Context, inst *types.Instance) {
	if err := r.rt.TerminateInstance(ctx, inst.RuntimeID); err != nil {
		r.logger.Warn().Err(err).Str("instance", inst.ID).Msg("terminate failed, will retry")
		return
	}
	if r.mat != nil {
		if err := r.mat.Cleanup(inst.ID); err != nil {
			r.logger.Warn().Err(err).Str("instance", inst.ID).Msg("staging cleanup failed")
		}
	}
	if err := r.store.DeleteInstance(r.namespace, inst.ID); err != nil {
		r.logger.Error().Err(err).Str("instance", inst.ID).Msg("failed to delete instance")
		return
	}
	r.broker.Publish(&events.Event{
		Type:      events.EventInstanceTerminated,
		Namespace: r.namespace,
		Tier:      r.tierName,
		Message:   fmt.Sprintf("instance %s terminated", inst.ID),
	})
	r.logger.Info().Str("instance", inst.ID).Msg("instance terminated")
}

// sweepFailed tears down a failed instance's remains so the next pass can
// create its replacement, with backoff against crash-loop amplification.
func (r *Reconciler) sweepFailed(ctx context.Context, inst *types.Instance) {
	_ = r.rt.TerminateInstance(ctx, inst.RuntimeID)
	if r.mat != nil {
		_ = r.mat.Cleanup(inst.ID)
	}
	if err := r.store.DeleteInstance(r.namespace, inst.ID); err != nil {
		r.logger.Error().Err(err).Str("instance", inst.ID).Msg("failed to delete failed instance")
		return
	}
	r.failures++
	delay := NextBackoffDelay(r.backoff, r.failures, r.rng)
	r.nextCreateAt = time.Now().Add(delay)
	r.logger.Info().
		Str("instance", inst.ID).
		Dur("replacement_in", delay).
		Msg("failed instance swept")
}

func (r *Reconciler) updateGauges(tier *types.Tier) {
	instances, err := r.store.ListInstancesByTier(r.namespace, r.tierName)
	if err != nil {
		return
	}
	counts := map[types.InstanceState]int{}
	for _, inst := range instances {
		counts[inst.State]++
	}
	for _, state := range []types.InstanceState{
		types.InstanceStatePending, types.InstanceStateSecretPending,
		types.InstanceStateReady, types.InstanceStateFailed,
		types.InstanceStateTerminating,
	} {
		metrics.InstancesTotal.WithLabelValues(r.tierName, string(state)).Set(float64(counts[state]))
	}
	metrics.TierDesiredReplicas.WithLabelValues(r.tierName).Set(float64(tier.DesiredReplicas))
	metrics.TierReadyReplicas.WithLabelValues(r.tierName).Set(float64(counts[types.InstanceStateReady]))
}

// ClaimName is the storage claim naming convention for a tier.
func ClaimName(tierName string) string {
	return tierName + "-data"
}
