package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/cloudkit/internal/metrics"
	"github.com/objectfs/cloudkit/pkg/health"
)

func serve(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthEndpoints(t *testing.T) {
	tracker := health.NewTracker(health.TrackerConfig{ErrorThreshold: 1, UnavailableThreshold: 2})
	tracker.RegisterComponent("queue")
	tracker.RegisterComponent("storage")
	h := NewHandler(tracker, nil, nil)

	tests := []struct {
		name       string
		errors     int
		wantHealth int
		wantReady  int
		wantStatus string
	}{
		{"healthy", 0, http.StatusOK, http.StatusOK, "healthy"},
		{"degraded", 1, http.StatusPartialContent, http.StatusOK, "degraded"},
		{"unavailable", 1, http.StatusServiceUnavailable, http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < tt.errors; i++ {
				tracker.RecordError("storage", errors.New("connection reset"))
			}

			rec := serve(t, h, http.MethodGet, "/health")
			assert.Equal(t, tt.wantHealth, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tt.wantStatus, body["status"])
			assert.Equal(t, float64(2), body["components"])

			rec = serve(t, h, http.MethodGet, "/health/ready")
			assert.Equal(t, tt.wantReady, rec.Code)
		})
	}
}

func TestHealthComponentsAndLiveness(t *testing.T) {
	tracker := health.NewTracker(health.DefaultConfig())
	tracker.RegisterComponent("queue")
	h := NewHandler(tracker, nil, nil)

	rec := serve(t, h, http.MethodGet, "/health/components")
	require.Equal(t, http.StatusOK, rec.Code)
	var components map[string]health.ComponentHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &components))
	assert.Equal(t, "queue", components["queue"].Name)

	rec = serve(t, h, http.MethodGet, "/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["alive"])
}

func TestMethodNotAllowed(t *testing.T) {
	h := NewHandler(nil, nil, nil)

	rec := serve(t, h, http.MethodPost, "/health")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Method not allowed", decode(t, rec)["error"])
}

func TestNilTrackerReportsHealthy(t *testing.T) {
	h := NewHandler(nil, nil, nil)

	rec := serve(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		rec := serve(t, NewHandler(nil, nil, nil), http.MethodGet, "/metrics")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("enabled", func(t *testing.T) {
		collector, err := metrics.NewCollector(&metrics.Config{Enabled: true, Namespace: "api_test"})
		require.NoError(t, err)
		collector.RecordMessage("orders.fifo", "sent")

		rec := serve(t, NewHandler(nil, collector, nil), http.MethodGet, "/metrics")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.Contains(rec.Body.String(), "api_test_messages_total"))
	})
}
