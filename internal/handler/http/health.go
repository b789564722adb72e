// Package http holds the HTTP middleware, health probes and metrics endpoint
// of the summarization API. The summarization endpoint itself lives in the
// summary subpackage.
package http

import (
	"net/http"
	"time"

	"medsum/internal/handler/http/respond"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks"`
	Version   string                 `json:"version"`
}

// CheckStatus is the result of a single health check.
type CheckStatus struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// ModelInventory lists the loaded model handles as "<model>|<device>" keys.
type ModelInventory interface {
	Keys() []string
}

// BackendStatus reports the state of the inference backend.
type BackendStatus interface {
	Name() string
	BreakerState() string
	Available() bool
}

// HealthHandler serves GET /health with the loaded models and the backend
// circuit breaker state.
type HealthHandler struct {
	Version string
	Models  ModelInventory
	Backend BackendStatus

	now func() time.Time
}

// ServeHTTP answers 200 while the backend accepts calls and 503 once its
// circuit breaker has opened. A half-open breaker reports "degraded".
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := map[string]CheckStatus{
		"backend": h.checkBackend(),
		"models":  h.checkModels(),
	}

	status := statusHealthy
	code := http.StatusOK
	for _, c := range checks {
		switch c.Status {
		case statusUnhealthy:
			status = statusUnhealthy
			code = http.StatusServiceUnavailable
		case statusDegraded:
			if status == statusHealthy {
				status = statusDegraded
			}
		}
	}

	now := time.Now
	if h.now != nil {
		now = h.now
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	respond.JSON(w, code, HealthResponse{
		Status:    status,
		Timestamp: now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Version:   h.Version,
	})
}

func (h *HealthHandler) checkBackend() CheckStatus {
	if h.Backend == nil {
		return CheckStatus{Status: statusUnhealthy, Message: "not configured"}
	}

	state := h.Backend.BreakerState()
	details := map[string]any{
		"name":            h.Backend.Name(),
		"circuit_breaker": state,
	}
	switch {
	case !h.Backend.Available():
		return CheckStatus{Status: statusUnhealthy, Message: "circuit breaker open", Details: details}
	case state == "half-open":
		return CheckStatus{Status: statusDegraded, Message: "circuit breaker probing", Details: details}
	default:
		return CheckStatus{Status: statusHealthy, Details: details}
	}
}

func (h *HealthHandler) checkModels() CheckStatus {
	keys := []string{}
	if h.Models != nil {
		keys = h.Models.Keys()
	}
	return CheckStatus{
		Status: statusHealthy,
		Details: map[string]any{
			"loaded": keys,
			"count":  len(keys),
		},
	}
}

// ReadyHandler serves GET /ready for readiness probes.
type ReadyHandler struct {
	Backend BackendStatus
}

// ServeHTTP answers 503 while the backend circuit breaker is open.
func (h *ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Backend == nil {
		respond.Text(w, http.StatusServiceUnavailable, "backend not configured", "")
		return
	}
	if !h.Backend.Available() {
		respond.Text(w, http.StatusServiceUnavailable, "backend unavailable: circuit breaker open", "")
		return
	}
	respond.Text(w, http.StatusOK, "ready", "")
}

// LiveHandler serves GET /live for liveness probes.
type LiveHandler struct{}

// ServeHTTP always answers 200.
func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	respond.Text(w, http.StatusOK, "alive", "")
}
