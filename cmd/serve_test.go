package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mapmind/internal/annotate"
	"github.com/sells-group/mapmind/internal/resilience"
	"github.com/sells-group/mapmind/internal/session"
	"github.com/sells-group/mapmind/pkg/analysis"
)

const serveResult = `{
  "summary": "Quiet residential area.",
  "ai_rating": 80,
  "bbox": [-122.5, 37.7, -122.3, 37.9],
  "geojson": {"type": "FeatureCollection", "features": [
    {"type": "Feature", "properties": {"type": "boundary"},
     "geometry": {"type": "Polygon", "coordinates": [[[-122.5, 37.7], [-122.3, 37.7], [-122.3, 37.9], [-122.5, 37.9], [-122.5, 37.7]]]}},
    {"type": "Feature", "properties": {"type": "poi", "name": "Park C", "category": "park"},
     "geometry": {"type": "Point", "coordinates": [-122.45, 37.75]}}
  ]}
}`

type testServer struct {
	handler  http.Handler
	registry *session.Registry
}

func newTestServer(t *testing.T, backend http.HandlerFunc) *testServer {
	t.Helper()
	api := httptest.NewServer(backend)
	t.Cleanup(api.Close)

	client := analysis.NewClient(
		analysis.WithBaseURL(api.URL),
		analysis.WithRateLimit(1000),
		analysis.WithRetry(resilience.Backoff{Attempts: 1}),
	)
	promReg := prometheus.NewRegistry()
	metrics := session.NewMetrics(promReg)
	reg := session.NewRegistry(func() *session.Session {
		return session.New(client, nil, session.Options{Style: annotate.DefaultStyle(), Metrics: metrics})
	}, metrics)
	t.Cleanup(reg.Close)

	return &testServer{handler: buildRouter(reg, promReg, nil), registry: reg}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)

	var out map[string]any
	if rr.Body.Len() > 0 && rr.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	}
	return rr, out
}

func (s *testServer) create(t *testing.T) string {
	t.Helper()
	rr, out := s.do(t, http.MethodPost, "/sessions", nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	id, _ := out["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestBuildRouter_Health(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {})
	rr, out := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", out["status"])
}

func TestBuildRouter_Metrics(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {})
	id := s.create(t)
	s.do(t, http.MethodPost, "/sessions/"+id+"/load", nil)
	s.do(t, http.MethodPost, "/sessions/"+id+"/click", map[string]float64{"lng": -122.4, "lat": 37.8})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "mapmind_session_clicks_total 1")
	assert.Contains(t, rr.Body.String(), "mapmind_session_active 1")
}

func TestBuildRouter_CORSPreflight(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {})
	req := httptest.NewRequest(http.MethodOptions, "/sessions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestBuildRouter_SelectConfirmDisplay(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze-area", r.URL.Path)
		_, _ = w.Write([]byte(serveResult))
	})
	id := s.create(t)

	rr, out := s.do(t, http.MethodPost, "/sessions/"+id+"/load", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "selection", out["mode"])

	_, out = s.do(t, http.MethodPost, "/sessions/"+id+"/click", map[string]float64{"lng": -122.4, "lat": 37.8})
	assert.Equal(t, "pin_placed", out["selection_state"])

	rr, _ = s.do(t, http.MethodPost, "/sessions/"+id+"/confirm", nil)
	require.Equal(t, http.StatusAccepted, rr.Code)

	sess, ok := s.registry.Get(id)
	require.True(t, ok)
	sess.Wait()

	_, out = s.do(t, http.MethodGet, "/sessions/"+id, nil)
	assert.Equal(t, "display", out["mode"])
	overview, ok := out["overview"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Quiet residential area.", overview["summary"])

	rr, out = s.do(t, http.MethodPost, "/sessions/"+id+"/events", map[string]any{
		"layer": "poi-points", "kind": "click", "lng": -122.45, "lat": 37.75,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	surface := out["surface"].(map[string]any)
	assert.Len(t, surface["popups"], 1)
	assert.Equal(t, "display", out["mode"])

	_, out = s.do(t, http.MethodPost, "/sessions/"+id+"/new-analysis", nil)
	assert.Equal(t, "selection", out["mode"])
	assert.Equal(t, "idle", out["selection_state"])
}

func TestBuildRouter_AnalysisFailure(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail":"LLM API Error: quota"}`))
	})
	id := s.create(t)
	s.do(t, http.MethodPost, "/sessions/"+id+"/load", nil)
	s.do(t, http.MethodPost, "/sessions/"+id+"/click", map[string]float64{"lng": -122.4, "lat": 37.8})
	s.do(t, http.MethodPost, "/sessions/"+id+"/confirm", nil)

	sess, _ := s.registry.Get(id)
	sess.Wait()

	_, out := s.do(t, http.MethodGet, "/sessions/"+id, nil)
	assert.Equal(t, "LLM API Error: quota", out["last_error"])
	assert.Equal(t, "confirmed", out["selection_state"])
}

func TestBuildRouter_Errors(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {})

	rr, _ := s.do(t, http.MethodGet, "/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, _ = s.do(t, http.MethodDelete, "/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	id := s.create(t)
	s.do(t, http.MethodPost, "/sessions/"+id+"/load", nil)

	rr, out := s.do(t, http.MethodPost, "/sessions/"+id+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "Please select a location on the map first.", out["error"])

	rr, _ = s.do(t, http.MethodPost, "/sessions/"+id+"/radius", map[string]float64{"radius_km": -1})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = s.do(t, http.MethodPost, "/sessions/"+id+"/radius", map[string]float64{"radius_km": 2})
	assert.Equal(t, http.StatusOK, rr.Code)
	_, out = s.do(t, http.MethodPost, "/sessions/"+id+"/click", map[string]float64{"lng": 2.35, "lat": 48.85})
	assert.InDelta(t, 2.0, out["selection"].(map[string]any)["radius_km"], 1e-9, "applies from the next click")

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/click", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rr, _ = s.do(t, http.MethodPost, "/sessions/"+id+"/search", map[string]string{"query": ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = s.do(t, http.MethodPost, "/sessions/"+id+"/search", map[string]string{"query": "paris"})
	assert.Equal(t, http.StatusBadGateway, rr.Code, "no geocoder configured")

	rr, _ = s.do(t, http.MethodDelete, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 0, s.registry.Len())
}

func TestBuildRouter_InteractionAndReset(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {})
	id := s.create(t)
	s.do(t, http.MethodPost, "/sessions/"+id+"/load", nil)
	s.do(t, http.MethodPost, "/sessions/"+id+"/click", map[string]float64{"lng": 2.35, "lat": 48.85})

	_, out := s.do(t, http.MethodPost, "/sessions/"+id+"/interaction", map[string]bool{"active": true})
	assert.Equal(t, true, out["interacting"])
	_, out = s.do(t, http.MethodPost, "/sessions/"+id+"/interaction", map[string]bool{"active": false})
	assert.Equal(t, false, out["interacting"])

	_, out = s.do(t, http.MethodPost, "/sessions/"+id+"/reset", nil)
	assert.Equal(t, "idle", out["selection_state"])
}

func TestExpireIdle(t *testing.T) {
	reg := session.NewRegistry(func() *session.Session { return session.New(nil, nil, session.Options{}) }, nil)
	defer reg.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	expireIdle(ctx, reg, time.Hour)
	expireIdle(context.Background(), reg, 0)
}
