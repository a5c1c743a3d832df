package runtime

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndStatus(t *testing.T) {
	r := NewMemoryRuntime()

	created, err := r.CreateInstance(context.Background(), CreateSpec{
		Namespace: "shop",
		Tier:      "backend",
		Image:     "shop/api:v3",
		Port:      8080,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.Address)

	status, err := r.InstanceStatus(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, status.State)
	assert.Equal(t, 1, r.RunningCount())
}

func TestTerminateIsIdempotent(t *testing.T) {
	r := NewMemoryRuntime()
	created, err := r.CreateInstance(context.Background(), CreateSpec{Tier: "proxy"})
	require.NoError(t, err)

	require.NoError(t, r.TerminateInstance(context.Background(), created.ID))
	require.NoError(t, r.TerminateInstance(context.Background(), created.ID))
	require.NoError(t, r.TerminateInstance(context.Background(), "never-existed"))

	status, err := r.InstanceStatus(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, StateExited, status.State)
	assert.Equal(t, 0, status.ExitCode)
}

func TestCrashInjection(t *testing.T) {
	r := NewMemoryRuntime()
	created, err := r.CreateInstance(context.Background(), CreateSpec{Tier: "database"})
	require.NoError(t, err)

	r.Crash(created.ID, 137)

	status, err := r.InstanceStatus(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, StateExited, status.State)
	assert.Equal(t, 137, status.ExitCode)
}

func TestFailNextCreates(t *testing.T) {
	r := NewMemoryRuntime()
	r.FailNextCreates(2, fmt.Errorf("runtime saturated"))

	_, err := r.CreateInstance(context.Background(), CreateSpec{})
	assert.ErrorContains(t, err, "runtime saturated")
	_, err = r.CreateInstance(context.Background(), CreateSpec{})
	assert.Error(t, err)

	created, err := r.CreateInstance(context.Background(), CreateSpec{})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
}

func TestUnknownInstanceStatus(t *testing.T) {
	r := NewMemoryRuntime()
	status, err := r.InstanceStatus(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, StateUnknown, status.State)
}
