package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/strataops/strata/pkg/events"
	"github.com/strataops/strata/pkg/log"
	"github.com/strataops/strata/pkg/store"
	"github.com/strataops/strata/pkg/types"
)

var (
	// ErrNoReadyInstances is returned by Resolve when the endpoint exists
	// but no instance of its tier is Ready.
	ErrNoReadyInstances = errors.New("no ready instances")

	// ErrPortExhausted is returned when the external port range has no
	// free port left.
	ErrPortExhausted = errors.New("external port range exhausted")
)

// Registry maintains named service endpoints for one namespace and
// resolves them to the addresses of Ready instances. Endpoint membership
// is computed at resolve time from instance state, never stored.
type Registry struct {
	namespace string
	store     store.Store
	broker    *events.Broker
	portMin   int
	portMax   int
	logger    zerolog.Logger

	mu      sync.Mutex
	rrIndex map[string]int
}

// New creates a registry for a namespace. portMin/portMax bound the
// node-port range used for external endpoints.
func New(namespace string, st store.Store, broker *events.Broker, portMin, portMax int) *Registry {
	return &Registry{
		namespace: namespace,
		store:     st,
		broker:    broker,
		portMin:   portMin,
		portMax:   portMax,
		logger:    log.WithComponent("registry").With().Str("namespace", namespace).Logger(),
		rrIndex:   make(map[string]int),
	}
}

// EnsureEndpoint creates the endpoint for a tier if it does not exist and
// returns it. The call is idempotent: an existing endpoint is returned
// unchanged, in particular its node port is never reassigned.
func (r *Registry) EnsureEndpoint(tier *types.Tier) (*types.ServiceEndpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ep, err := r.store.GetEndpoint(r.namespace, tier.Name); err == nil {
		return ep, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to load endpoint: %w", err)
	}

	ep := &types.ServiceEndpoint{
		Name:       tier.Name,
		Namespace:  r.namespace,
		Tier:       tier.Name,
		Port:       tier.Port,
		Visibility: types.VisibilityInternal,
		CreatedAt:  time.Now(),
	}
	if tier.ExposeExternally {
		ep.Visibility = types.VisibilityExternal
		port, err := r.allocateNodePort(tier.ExternalPort)
		if err != nil {
			return nil, err
		}
		ep.NodePort = port
	}

	if err := r.store.CreateEndpoint(ep); err != nil {
		return nil, fmt.Errorf("failed to persist endpoint: %w", err)
	}

	r.broker.Publish(&events.Event{
		Type:      events.EventEndpointRegistered,
		Namespace: r.namespace,
		Tier:      tier.Name,
		Message:   fmt.Sprintf("endpoint %s registered (%s)", ep.Name, ep.Visibility),
	})
	ev := r.logger.Info().Str("endpoint", ep.Name).Str("visibility", string(ep.Visibility))
	if ep.NodePort != 0 {
		ev = ev.Int("node_port", ep.NodePort)
	}
	ev.Msg("endpoint registered")
	return ep, nil
}

// allocateNodePort returns the requested port if any, else the lowest
// free port in the configured range. Callers hold r.mu.
func (r *Registry) allocateNodePort(requested int) (int, error) {
	existing, err := r.store.ListEndpoints(r.namespace)
	if err != nil {
		return 0, fmt.Errorf("failed to list endpoints: %w", err)
	}
	used := make(map[int]bool, len(existing))
	for _, ep := range existing {
		if ep.NodePort != 0 {
			used[ep.NodePort] = true
		}
	}

	if requested != 0 {
		if requested < r.portMin || requested > r.portMax {
			return 0, fmt.Errorf("external port %d outside range %d-%d", requested, r.portMin, r.portMax)
		}
		if used[requested] {
			return 0, fmt.Errorf("external port %d already in use", requested)
		}
		return requested, nil
	}

	for port := r.portMin; port <= r.portMax; port++ {
		if !used[port] {
			return port, nil
		}
	}
	return 0, ErrPortExhausted
}

// Resolve returns the address of one Ready instance behind the named
// endpoint, rotating through the Ready set on successive calls.
func (r *Registry) Resolve(name string) (string, error) {
	ep, err := r.store.GetEndpoint(r.namespace, name)
	if err != nil {
		return "", fmt.Errorf("failed to load endpoint: %w", err)
	}

	instances, err := r.store.ListInstancesByTier(r.namespace, ep.Tier)
	if err != nil {
		return "", fmt.Errorf("failed to list instances: %w", err)
	}

	var ready []*types.Instance
	for _, inst := range instances {
		if inst.State == types.InstanceStateReady {
			ready = append(ready, inst)
		}
	}
	if len(ready) == 0 {
		return "", ErrNoReadyInstances
	}

	r.mu.Lock()
	idx := r.rrIndex[name] % len(ready)
	r.rrIndex[name]++
	r.mu.Unlock()

	return fmt.Sprintf("%s:%d", ready[idx].Address, ep.Port), nil
}

// Remove deletes an endpoint. Removing a missing endpoint is a no-op.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.store.GetEndpoint(r.namespace, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load endpoint: %w", err)
	}
	if err := r.store.DeleteEndpoint(r.namespace, name); err != nil {
		return fmt.Errorf("failed to delete endpoint: %w", err)
	}
	delete(r.rrIndex, name)

	r.broker.Publish(&events.Event{
		Type:      events.EventEndpointRemoved,
		Namespace: r.namespace,
		Message:   fmt.Sprintf("endpoint %s removed", name),
	})
	r.logger.Info().Str("endpoint", name).Msg("endpoint removed")
	return nil
}
