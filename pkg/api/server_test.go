package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/strataops/strata/pkg/events"
	"github.com/strataops/strata/pkg/registry"
	"github.com/strataops/strata/pkg/store"
	"github.com/strataops/strata/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	st, err := store.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	reg := registry.New("shop", st, broker, 30000, 32767)
	return New("shop", ":0", st, reg, broker), st
}

func doGet(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.router().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doGet(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusNotRecordedYet(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doGet(t, s, "/v1/status")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusReturnsTopology(t *testing.T) {
	s, st := newTestServer(t)
	require.NoError(t, st.PutTopologyStatus(&types.TopologyStatus{
		Namespace: "shop",
		Phase:     types.PhaseServing,
		Tiers: []types.TierStatus{
			{Tier: "api", Desired: 2, Ready: 2},
		},
		UpdatedAt: time.Now(),
	}))

	rec := doGet(t, s, "/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status types.TopologyStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, types.PhaseServing, status.Phase)
	require.Len(t, status.Tiers, 1)
	assert.Equal(t, 2, status.Tiers[0].Ready)
}

func TestTiers(t *testing.T) {
	s, st := newTestServer(t)
	require.NoError(t, st.CreateTier(&types.Tier{
		Name: "api", Namespace: "shop", Kind: types.TierKindBackend,
		Image: "shop/api:v3", DesiredReplicas: 2, Port: 8080,
	}))

	rec := doGet(t, s, "/v1/tiers")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shop/api:v3")
}

func TestResolveEndpoint(t *testing.T) {
	s, st := newTestServer(t)

	rec := doGet(t, s, "/v1/endpoints/api")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := s.registry.EnsureEndpoint(&types.Tier{Name: "api", Port: 8080})
	require.NoError(t, err)

	rec = doGet(t, s, "/v1/endpoints/api")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "endpoint exists, nothing ready")

	require.NoError(t, st.CreateInstance(&types.Instance{
		ID: "i1", Tier: "api", Namespace: "shop",
		Address: "10.88.0.7", State: types.InstanceStateReady, CreatedAt: time.Now(),
	}))

	rec = doGet(t, s, "/v1/endpoints/api")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "10.88.0.7:8080", body["address"])
}

func TestEventsStream(t *testing.T) {
	s, _ := newTestServer(t)

	srv := httptest.NewServer(s.router())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/v1/events")
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	s.broker.Publish(&events.Event{
		Type:      events.EventInstanceReady,
		Namespace: "shop",
		Tier:      "api",
		Message:   "instance i1 ready",
	})

	type chunk struct {
		data string
		err  error
	}
	ch := make(chan chunk, 1)
	go func() {
		buf := make([]byte, 4096)
		n, err := resp.Body.Read(buf)
		ch <- chunk{string(buf[:n]), err}
	}()

	select {
	case c := <-ch:
		require.NoError(t, c.err)
		assert.Contains(t, c.data, "instance.ready")
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}
