package registry

import (
	"testing"
	"time"

	"github.com/strataops/strata/pkg/events"
	"github.com/strataops/strata/pkg/store"
	"github.com/strataops/strata/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, store.Store) {
	t.Helper()
	st, err := store.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	return New("shop", st, broker, 30000, 30002), st
}

func addInstance(t *testing.T, st store.Store, tier, id, address string, state types.InstanceState) {
	t.Helper()
	require.NoError(t, st.CreateInstance(&types.Instance{
		ID: id, Tier: tier, Namespace: "shop",
		Address: address, State: state, CreatedAt: time.Now(),
	}))
}

func TestEnsureEndpointInternal(t *testing.T) {
	r, _ := newTestRegistry(t)

	ep, err := r.EnsureEndpoint(&types.Tier{Name: "api", Port: 8080})
	require.NoError(t, err)
	assert.Equal(t, types.VisibilityInternal, ep.Visibility)
	assert.Zero(t, ep.NodePort)

	// Idempotent: same endpoint back, nothing reallocated.
	again, err := r.EnsureEndpoint(&types.Tier{Name: "api", Port: 8080})
	require.NoError(t, err)
	assert.Equal(t, ep.CreatedAt.Unix(), again.CreatedAt.Unix())
}

func TestEnsureEndpointAllocatesLowestFreePort(t *testing.T) {
	r, _ := newTestRegistry(t)

	a, err := r.EnsureEndpoint(&types.Tier{Name: "edge", Port: 80, ExposeExternally: true})
	require.NoError(t, err)
	assert.Equal(t, 30000, a.NodePort)

	b, err := r.EnsureEndpoint(&types.Tier{Name: "edge2", Port: 80, ExposeExternally: true})
	require.NoError(t, err)
	assert.Equal(t, 30001, b.NodePort)
}

func TestEnsureEndpointHonorsRequestedPort(t *testing.T) {
	r, _ := newTestRegistry(t)

	ep, err := r.EnsureEndpoint(&types.Tier{
		Name: "edge", Port: 80, ExposeExternally: true, ExternalPort: 30002,
	})
	require.NoError(t, err)
	assert.Equal(t, 30002, ep.NodePort)

	_, err = r.EnsureEndpoint(&types.Tier{
		Name: "edge2", Port: 80, ExposeExternally: true, ExternalPort: 30002,
	})
	assert.Error(t, err, "requested port already taken")

	_, err = r.EnsureEndpoint(&types.Tier{
		Name: "edge3", Port: 80, ExposeExternally: true, ExternalPort: 99,
	})
	assert.Error(t, err, "requested port outside range")
}

func TestEnsureEndpointPortExhaustion(t *testing.T) {
	r, _ := newTestRegistry(t)

	for i, name := range []string{"a", "b", "c"} {
		ep, err := r.EnsureEndpoint(&types.Tier{Name: name, Port: 80, ExposeExternally: true})
		require.NoError(t, err)
		assert.Equal(t, 30000+i, ep.NodePort)
	}

	_, err := r.EnsureEndpoint(&types.Tier{Name: "d", Port: 80, ExposeExternally: true})
	assert.ErrorIs(t, err, ErrPortExhausted)
}

func TestEndpointPortSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	st, err := store.NewBoltStore(dir)
	require.NoError(t, err)
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	r := New("shop", st, broker, 30000, 32767)
	ep, err := r.EnsureEndpoint(&types.Tier{Name: "edge", Port: 80, ExposeExternally: true})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	// New process, same data dir: allocation must be stable.
	st2, err := store.NewBoltStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { st2.Close() })

	r2 := New("shop", st2, broker, 30000, 32767)
	again, err := r2.EnsureEndpoint(&types.Tier{Name: "edge", Port: 80, ExposeExternally: true})
	require.NoError(t, err)
	assert.Equal(t, ep.NodePort, again.NodePort)
}

func TestResolveReadyOnly(t *testing.T) {
	r, st := newTestRegistry(t)
	_, err := r.EnsureEndpoint(&types.Tier{Name: "api", Port: 8080})
	require.NoError(t, err)

	addInstance(t, st, "api", "i1", "10.88.0.1", types.InstanceStatePending)
	addInstance(t, st, "api", "i2", "10.88.0.2", types.InstanceStateSecretPending)

	_, err = r.Resolve("api")
	assert.ErrorIs(t, err, ErrNoReadyInstances)

	addInstance(t, st, "api", "i3", "10.88.0.3", types.InstanceStateReady)
	addr, err := r.Resolve("api")
	require.NoError(t, err)
	assert.Equal(t, "10.88.0.3:8080", addr)
}

func TestResolveRotates(t *testing.T) {
	r, st := newTestRegistry(t)
	_, err := r.EnsureEndpoint(&types.Tier{Name: "api", Port: 8080})
	require.NoError(t, err)

	addInstance(t, st, "api", "i1", "10.88.0.1", types.InstanceStateReady)
	addInstance(t, st, "api", "i2", "10.88.0.2", types.InstanceStateReady)

	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		addr, err := r.Resolve("api")
		require.NoError(t, err)
		seen[addr]++
	}
	assert.Equal(t, 2, seen["10.88.0.1:8080"])
	assert.Equal(t, 2, seen["10.88.0.2:8080"])
}

func TestRemove(t *testing.T) {
	r, st := newTestRegistry(t)
	_, err := r.EnsureEndpoint(&types.Tier{Name: "api", Port: 8080})
	require.NoError(t, err)

	require.NoError(t, r.Remove("api"))
	_, err = st.GetEndpoint("shop", "api")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.NoError(t, r.Remove("api"), "removing a missing endpoint is a no-op")
}
