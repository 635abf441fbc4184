package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cbodonnell/roadtrip/client/assets"
	"github.com/cbodonnell/roadtrip/client/network"
	"github.com/cbodonnell/roadtrip/client/remote"
	"github.com/cbodonnell/roadtrip/client/render"
	"github.com/cbodonnell/roadtrip/client/session"
	"github.com/cbodonnell/roadtrip/pkg/api/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedLatency time.Duration

func (l fixedLatency) Latency() time.Duration {
	return time.Duration(l)
}

func newTestRouter(t *testing.T) (http.Handler, *remote.Registry) {
	t.Helper()
	catalog := assets.NewCatalog()
	require.NoError(t, catalog.Populate([]assets.Model{{ID: "car-1", URL: "/m/car-1.glb"}}))
	registry, err := remote.NewRegistry(remote.NewRegistryOptions{
		LocalPlayerID: "me",
		Models:        catalog,
		Renderer:      render.NewTrackingRenderer(),
	})
	require.NoError(t, err)
	t.Cleanup(registry.Clear)

	tracker := session.NewConnectionStateTracker(nil, nil)
	tracker.Handle(network.LifecycleConnected)

	return NewRouter(NewAPIServerOptions{
		Connection: tracker,
		Latency:    fixedLatency(35 * time.Millisecond),
		Players:    registry,
	}), registry
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := get(t, router, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGetConnection(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := get(t, router, "/connection")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "connected", body["status"])
	assert.Equal(t, float64(0), body["reconnectAttempts"])
	assert.Equal(t, float64(35), body["latencyMs"])
}

func TestPlayers(t *testing.T) {
	router, registry := newTestRouter(t)
	registry.Upsert(remote.PlayerUpdate{ID: "p2", Name: "Grace", ModelID: "car-1"})
	registry.Upsert(remote.PlayerUpdate{ID: "p1", Name: "Ada", ModelID: "car-1"})

	rec := get(t, router, "/players")
	require.Equal(t, http.StatusOK, rec.Code)

	var list handlers.PlayersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)
	require.Len(t, list.Players, 2)
	assert.Equal(t, "p1", list.Players[0].ID)
	assert.Equal(t, "Grace", list.Players[1].Name)

	rec = get(t, router, "/players/p2")
	require.Equal(t, http.StatusOK, rec.Code)
	var player remote.EntityState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &player))
	assert.Equal(t, "p2", player.ID)
	assert.Equal(t, "car-1", player.ModelID)

	rec = get(t, router, "/players/nobody")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEmptyPlayerListIsAnArray(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := get(t, router, "/players")

	assert.JSONEq(t, `{"count":0,"players":[]}`, rec.Body.String())
}

func TestPreflight(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/players", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/players", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
