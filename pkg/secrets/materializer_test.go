package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/strataops/strata/pkg/events"
	"github.com/strataops/strata/pkg/store"
	"github.com/strataops/strata/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMaterializer(t *testing.T) (*Materializer, store.Store) {
	t.Helper()
	st, err := store.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cs, err := NewCredentialStoreFromSeed(st, "test-seed")
	require.NoError(t, err)
	require.NoError(t, cs.Ensure("shop", "db-password", "hunter2"))

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	m, err := NewMaterializer("shop", "db-password", t.TempDir(), st, cs, broker, 10*time.Millisecond)
	require.NoError(t, err)
	return m, st
}

func pendingInstance(t *testing.T, st store.Store, tier string) *types.Instance {
	t.Helper()
	inst := &types.Instance{
		ID:        uuid.New().String(),
		Tier:      tier,
		Namespace: "shop",
		State:     types.InstanceStateSecretPending,
		CreatedAt: time.Now(),
	}
	require.NoError(t, st.CreateInstance(inst))
	return inst
}

func TestMaterializeWritesPayloadAndMarker(t *testing.T) {
	m, st := newTestMaterializer(t)
	inst := pendingInstance(t, st, "backend")

	require.False(t, m.Materialized(inst.ID))
	require.NoError(t, m.Materialize(inst))
	assert.True(t, m.Materialized(inst.ID))

	payload, err := os.ReadFile(filepath.Join(m.StagingDir(inst.ID), "db-password"))
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(payload))

	info, err := os.Stat(filepath.Join(m.StagingDir(inst.ID), "db-password"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0400), info.Mode().Perm())
}

func TestStagingIsPerInstance(t *testing.T) {
	m, st := newTestMaterializer(t)
	a := pendingInstance(t, st, "backend")
	b := pendingInstance(t, st, "backend")

	require.NoError(t, m.Materialize(a))
	require.NoError(t, m.Materialize(b))

	assert.NotEqual(t, m.StagingDir(a.ID), m.StagingDir(b.ID))
	assert.True(t, m.Materialized(a.ID))
	assert.True(t, m.Materialized(b.ID))

	// Cleaning up one instance must not touch the other.
	require.NoError(t, m.Cleanup(a.ID))
	assert.False(t, m.Materialized(a.ID))
	assert.True(t, m.Materialized(b.ID))
}

func TestMaterializeFailureMarksInstanceFailed(t *testing.T) {
	st, err := store.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer st.Close()

	cs, err := NewCredentialStoreFromSeed(st, "test-seed")
	require.NoError(t, err)
	// Credential intentionally never created.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	m, err := NewMaterializer("shop", "db-password", t.TempDir(), st, cs, broker, 10*time.Millisecond)
	require.NoError(t, err)

	inst := pendingInstance(t, st, "database")
	err = m.Materialize(inst)
	require.Error(t, err)

	got, err := st.GetInstance("shop", inst.ID)
	require.NoError(t, err)
	assert.Equal(t, types.InstanceStateFailed, got.State)
	assert.Contains(t, got.Error, "secret materialization")
	assert.False(t, m.Materialized(inst.ID), "no marker on failure")
}

func TestRunLoopMaterializesPending(t *testing.T) {
	m, st := newTestMaterializer(t)
	inst := pendingInstance(t, st, "backend")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go m.Run(ctx)

	require.Eventually(t, func() bool {
		return m.Materialized(inst.ID)
	}, time.Second, 10*time.Millisecond)
}

func TestCleanupMissingDirIsNoop(t *testing.T) {
	m, _ := newTestMaterializer(t)
	assert.NoError(t, m.Cleanup("never-materialized"))
}
