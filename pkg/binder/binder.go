package binder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/strataops/strata/pkg/events"
	"github.com/strataops/strata/pkg/log"
	"github.com/strataops/strata/pkg/metrics"
	"github.com/strataops/strata/pkg/store"
	"github.com/strataops/strata/pkg/types"
	"github.com/strataops/strata/pkg/volume"
)

var (
	// ErrNoCapacity means no available volume can satisfy the claim.
	ErrNoCapacity = errors.New("no volume with sufficient capacity")

	// ErrVolumeUnavailable means the requested volume is owned by another
	// claim or awaits an administrative reset.
	ErrVolumeUnavailable = errors.New("volume unavailable")
)

// Binder matches storage claims to volumes. All bind and release mutations
// are serialized under one mutex: a volume is never observed bound to two
// claims.
type Binder struct {
	namespace string
	store     store.Store
	provider  volume.Provider
	broker    *events.Broker
	interval  time.Duration
	logger    zerolog.Logger

	mu sync.Mutex // single-writer discipline over volume mutation
}

// New creates a binder for one namespace.
func New(namespace string, st store.Store, provider volume.Provider, broker *events.Broker, interval time.Duration) *Binder {
	return &Binder{
		namespace: namespace,
		store:     st,
		provider:  provider,
		broker:    broker,
		interval:  interval,
		logger:    log.WithComponent("binder"),
	}
}

// Run drives pending claims toward Bound until the context is cancelled.
// Level-triggered: every tick re-scans current claim state.
func (b *Binder) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.BindPending()
		case <-ctx.Done():
			return
		}
	}
}

// BindPending performs one binding pass over the namespace's pending
// claims.
func (b *Binder) BindPending() {
	claims, err := b.store.ListClaims(b.namespace)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to list claims")
		return
	}

	for _, claim := range claims {
		if claim.Phase != types.ClaimPhasePending {
			continue
		}
		if _, err := b.Bind(claim.ID); err != nil {
			switch {
			case errors.Is(err, ErrNoCapacity):
				// Surfaced as degraded status upward; keep retrying.
				b.logger.Debug().Str("claim", claim.Name).Msg("no capacity for claim")
			case errors.Is(err, ErrVolumeUnavailable):
				// Configuration conflict: logged, never silently resolved.
				b.logger.Error().Err(err).Str("claim", claim.Name).Msg("claim targets an owned volume")
			default:
				b.logger.Error().Err(err).Str("claim", claim.Name).Msg("bind failed")
			}
		}
	}
}

// Bind satisfies a claim with the smallest available volume whose capacity
// and access modes fit (tie-break: lowest volume ID). Binding is
// idempotent: re-binding an already-bound claim returns its existing
// volume.
func (b *Binder) Bind(claimID string) (*types.StorageVolume, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	claim, err := b.store.GetClaim(b.namespace, claimID)
	if err != nil {
		return nil, err
	}

	if claim.Phase == types.ClaimPhaseBound && claim.VolumeID != "" {
		vol, err := b.store.GetVolume(claim.VolumeID)
		if err != nil {
			return nil, err
		}
		if vol.ClaimID != claim.ID {
			return nil, fmt.Errorf("claim %s records volume %s owned by %s: %w",
				claim.ID, vol.ID, vol.ClaimID, ErrVolumeUnavailable)
		}
		return vol, nil
	}

	vol, err := b.selectVolume(claim)
	if err != nil {
		metrics.BindAttemptsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}

	if err := b.provider.Attach(vol.ID, claim.ID); err != nil {
		metrics.BindAttemptsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to attach volume %s: %w", vol.ID, err)
	}

	vol.State = types.VolumeStateBound
	vol.ClaimID = claim.ID
	if err := b.store.UpdateVolume(vol); err != nil {
		return nil, err
	}
	claim.Phase = types.ClaimPhaseBound
	claim.VolumeID = vol.ID
	if err := b.store.UpdateClaim(claim); err != nil {
		return nil, err
	}

	metrics.BindAttemptsTotal.WithLabelValues("bound").Inc()
	metrics.VolumesBound.Inc()
	b.broker.Publish(&events.Event{
		Type:      events.EventVolumeBound,
		Namespace: b.namespace,
		Tier:      claim.Tier,
		Message:   fmt.Sprintf("claim %s bound to volume %s", claim.Name, vol.Name),
	})
	b.logger.Info().
		Str("claim", claim.Name).
		Str("volume", vol.Name).
		Int64("capacity", vol.CapacityBytes).
		Msg("claim bound")
	return vol, nil
}

func (b *Binder) selectVolume(claim *types.StorageClaim) (*types.StorageVolume, error) {
	if claim.VolumeName != "" {
		vol, err := b.store.GetVolumeByName(claim.VolumeName)
		if err != nil {
			return nil, err
		}
		if vol.State != types.VolumeStateAvailable {
			return nil, fmt.Errorf("volume %s is %s: %w", vol.Name, vol.State, ErrVolumeUnavailable)
		}
		if vol.CapacityBytes < claim.CapacityBytes || !vol.HasAccessModes(claim.AccessModes) {
			return nil, fmt.Errorf("pinned volume %s does not fit claim: %w", vol.Name, ErrNoCapacity)
		}
		return vol, nil
	}

	volumes, err := b.store.ListVolumes()
	if err != nil {
		return nil, err
	}

	var candidates []*types.StorageVolume
	for _, vol := range volumes {
		if vol.State != types.VolumeStateAvailable {
			continue
		}
		if vol.CapacityBytes < claim.CapacityBytes {
			continue
		}
		if !vol.HasAccessModes(claim.AccessModes) {
			continue
		}
		candidates = append(candidates, vol)
	}
	if len(candidates) == 0 {
		return nil, ErrNoCapacity
	}

	// Smallest fitting volume; lowest ID breaks ties deterministically.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CapacityBytes != candidates[j].CapacityBytes {
			return candidates[i].CapacityBytes < candidates[j].CapacityBytes
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0], nil
}

// Release unbinds a claim's volume and deletes the claim. The volume moves
// to Released: its data is retained and it stays ineligible for re-binding
// until an explicit AdminReset.
func (b *Binder) Release(claimID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	claim, err := b.store.GetClaim(b.namespace, claimID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	if claim.Phase == types.ClaimPhaseBound && claim.VolumeID != "" {
		vol, err := b.store.GetVolume(claim.VolumeID)
		if err != nil {
			return err
		}
		if err := b.provider.Detach(vol.ID); err != nil {
			return fmt.Errorf("failed to detach volume %s: %w", vol.ID, err)
		}
		vol.State = types.VolumeStateReleased
		if err := b.store.UpdateVolume(vol); err != nil {
			return err
		}
		metrics.VolumesBound.Dec()
		b.broker.Publish(&events.Event{
			Type:      events.EventVolumeReleased,
			Namespace: b.namespace,
			Tier:      claim.Tier,
			Message:   fmt.Sprintf("volume %s released, data retained", vol.Name),
		})
		b.logger.Info().Str("claim", claim.Name).Str("volume", vol.Name).Msg("claim released")
	}

	return b.store.DeleteClaim(b.namespace, claim.ID)
}

// AddVolume registers a new volume with the provider and the store.
func (b *Binder) AddVolume(name string, capacityBytes int64, modes []types.AccessMode) (*types.StorageVolume, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.store.GetVolumeByName(name); err == nil {
		return nil, fmt.Errorf("volume %q already exists", name)
	}

	vol := &types.StorageVolume{
		ID:            uuid.New().String(),
		Name:          name,
		CapacityBytes: capacityBytes,
		AccessModes:   modes,
		State:         types.VolumeStateAvailable,
		CreatedAt:     time.Now(),
	}
	path, err := b.provider.Register(vol.ID)
	if err != nil {
		return nil, err
	}
	vol.Path = path
	if err := b.store.CreateVolume(vol); err != nil {
		return nil, err
	}
	return vol, nil
}

// AdminReset wipes a released volume's retained data and makes it
// available again. This is the explicit second step that keeps destructive
// erasure out of the normal control path.
func (b *Binder) AdminReset(volumeID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	vol, err := b.store.GetVolume(volumeID)
	if err != nil {
		return err
	}
	if vol.State == types.VolumeStateBound {
		return fmt.Errorf("volume %s is bound to claim %s: %w", vol.Name, vol.ClaimID, ErrVolumeUnavailable)
	}
	if err := b.provider.Reset(vol.ID); err != nil {
		return err
	}
	vol.State = types.VolumeStateAvailable
	vol.ClaimID = ""
	return b.store.UpdateVolume(vol)
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrNoCapacity):
		return "no_capacity"
	case errors.Is(err, ErrVolumeUnavailable):
		return "conflict"
	default:
		return "error"
	}
}
