package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	name  string
	state string
}

func (f fakeBackend) Name() string         { return f.name }
func (f fakeBackend) BreakerState() string { return f.state }
func (f fakeBackend) Available() bool      { return f.state != "open" }

type fakeInventory []string

func (f fakeInventory) Keys() []string { return f }

func TestHealthHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name        string
		backend     BackendStatus
		wantCode    int
		wantStatus  string
		wantBackend string
	}{
		{name: "closed breaker", backend: fakeBackend{name: "remote", state: "closed"}, wantCode: http.StatusOK, wantStatus: "healthy", wantBackend: "healthy"},
		{name: "half-open breaker", backend: fakeBackend{name: "remote", state: "half-open"}, wantCode: http.StatusOK, wantStatus: "degraded", wantBackend: "degraded"},
		{name: "open breaker", backend: fakeBackend{name: "openai", state: "open"}, wantCode: http.StatusServiceUnavailable, wantStatus: "unhealthy", wantBackend: "unhealthy"},
		{name: "no backend", backend: nil, wantCode: http.StatusServiceUnavailable, wantStatus: "unhealthy", wantBackend: "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &HealthHandler{
				Version: "test-version",
				Models:  fakeInventory{"facebook/bart-large-cnn|cpu"},
				Backend: tt.backend,
				now:     func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) },
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))

			var resp HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, "test-version", resp.Version)
			assert.Equal(t, "2024-03-15T12:00:00Z", resp.Timestamp)
			assert.Equal(t, tt.wantBackend, resp.Checks["backend"].Status)

			models := resp.Checks["models"]
			assert.Equal(t, "healthy", models.Status)
			assert.Equal(t, []any{"facebook/bart-large-cnn|cpu"}, models.Details["loaded"])
			assert.Equal(t, float64(1), models.Details["count"])
		})
	}
}

func TestHealthHandler_NoModels(t *testing.T) {
	handler := &HealthHandler{Backend: fakeBackend{name: "stub", state: "closed"}}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, []any{}, resp.Checks["models"].Details["loaded"])
	assert.Equal(t, "stub", resp.Checks["backend"].Details["name"])
}

func TestReadyHandler(t *testing.T) {
	tests := []struct {
		name     string
		backend  BackendStatus
		wantCode int
		wantBody string
	}{
		{name: "ready", backend: fakeBackend{state: "closed"}, wantCode: http.StatusOK, wantBody: "ready"},
		{name: "half-open still ready", backend: fakeBackend{state: "half-open"}, wantCode: http.StatusOK, wantBody: "ready"},
		{name: "breaker open", backend: fakeBackend{state: "open"}, wantCode: http.StatusServiceUnavailable, wantBody: "backend unavailable: circuit breaker open"},
		{name: "not configured", backend: nil, wantCode: http.StatusServiceUnavailable, wantBody: "backend not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			(&ReadyHandler{Backend: tt.backend}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	(&LiveHandler{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alive", rec.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
}
