package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/mapmind/internal/resilience"
	"github.com/sells-group/mapmind/internal/selection"
)

const okResponse = `{
  "summary": "Mostly residential with moderate traffic.",
  "ai_rating": 72,
  "bbox": [-122.52, 37.70, -122.35, 37.83],
  "pie_chart_data": [{"name": "school", "value": 3, "color": "#123456"}],
  "air_quality": {"aqi": 2},
  "environmental_impact": {"category": "Moderate", "risks": [{"level": "Low", "description": "traffic"}]}
}`

func newTestClient(serverURL string, opts ...Option) *client {
	c := NewClient(append([]Option{
		WithBaseURL(serverURL),
		WithRetry(resilience.Backoff{Attempts: 3, Initial: time.Millisecond, Max: time.Millisecond}),
	}, opts...)...).(*client)
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	return c
}

func TestAnalyze_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/analyze-area", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.InDelta(t, -122.4194, body["longitude"], 1e-9)
		assert.InDelta(t, 37.7749, body["latitude"], 1e-9)
		assert.InDelta(t, 5.0, body["radius"], 1e-9)
		assert.Equal(t, true, body["include_factors"])
		assert.Equal(t, true, body["include_comparison"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okResponse))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL + "/")
	res, err := c.Analyze(context.Background(), selection.Request{Lng: -122.4194, Lat: 37.7749, RadiusKm: 5})
	require.NoError(t, err)

	assert.Equal(t, "Mostly residential with moderate traffic.", res.Summary)
	assert.InDelta(t, 72.0, res.AIRating, 1e-9)
	require.Len(t, res.PieChartData, 1)
	assert.Equal(t, "#123456", res.PieChartData[0].Color)

	p, err := res.Payload()
	require.NoError(t, err)
	require.NotNil(t, p.BoundingBox)
	assert.InDelta(t, -122.52, p.BoundingBox.MinLng, 1e-9)
}

func TestAnalyze_RequestFlags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, false, body["include_factors"])
		assert.Equal(t, false, body["include_comparison"])
		assert.InDelta(t, selection.DefaultRadiusKm, body["radius"], 1e-9)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, WithFactors(false), WithComparison(false))
	_, err := c.Analyze(context.Background(), selection.Request{Lng: 1, Lat: 2})
	require.NoError(t, err)
}

func TestAnalyze_DetailMessage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Area outside supported region"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Analyze(context.Background(), selection.Request{Lng: 1, Lat: 2, RadiusKm: 5})
	require.Error(t, err)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Area outside supported region", apiErr.Message)
	assert.Equal(t, "Area outside supported region", Message(err))
	assert.Equal(t, int32(1), calls.Load(), "client errors are not retried")
}

func TestAnalyze_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"detail":"LLM API Error: overloaded"}`))
			return
		}
		_, _ = w.Write([]byte(`{"summary":"ok"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	res, err := c.Analyze(context.Background(), selection.Request{Lng: 1, Lat: 2, RadiusKm: 5})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Summary)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAnalyze_ServerErrorExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"Unexpected error: boom"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Analyze(context.Background(), selection.Request{Lng: 1, Lat: 2, RadiusKm: 5})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, "Unexpected error: boom", Message(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestAnalyze_BadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Analyze(context.Background(), selection.Request{Lng: 1, Lat: 2, RadiusKm: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse response")
	assert.Equal(t, FallbackMessage, Message(err))
}

func TestAnalyze_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(srv.URL)
	_, err := c.Analyze(ctx, selection.Request{Lng: 1, Lat: 2, RadiusKm: 5})
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestDetailOf(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"string detail", `{"detail":"nope"}`, "nope"},
		{"blank detail", `{"detail":"  "}`, FallbackMessage},
		{"validation list", `{"detail":[{"msg":"field required"},{"msg":"bad value"}]}`, "field required; bad value"},
		{"empty list", `{"detail":[]}`, FallbackMessage},
		{"no detail", `{"error":"x"}`, FallbackMessage},
		{"not json", `<html>502</html>`, FallbackMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detailOf([]byte(tt.body)))
		})
	}
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, FallbackMessage, Message(errors.New("dial tcp: refused")))
	assert.Equal(t, FallbackMessage, Message(&Error{StatusCode: 500}))
	assert.Equal(t, "analysis: status 404: missing", (&Error{StatusCode: 404, Message: "missing"}).Error())
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient().(*client)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, 60*time.Second, c.httpClient.Timeout)
	assert.True(t, c.includeFactors)
	assert.True(t, c.includeComparison)

	c = NewClient(WithTimeout(5*time.Second), WithRateLimit(4), WithHTTPClient(&http.Client{}), WithBaseURL("")).(*client)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, rate.Limit(4), c.limiter.Limit())
}
