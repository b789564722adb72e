package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMetricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /summaries", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"summary":"ok"}`))
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	return mux
}

func TestMetricsMiddleware_RouteLabels(t *testing.T) {
	httpRequestsTotal.Reset()
	httpRequestDuration.Reset()

	mux := newMetricsMux()
	handler := MetricsMiddleware(mux)(mux)

	tests := []struct {
		name   string
		method string
		path   string
		route  string
		status string
	}{
		{name: "summaries", method: http.MethodPost, path: "/summaries", route: "POST /summaries", status: "200"},
		{name: "health", method: http.MethodGet, path: "/health", route: "GET /health", status: "503"},
		{name: "unknown path", method: http.MethodGet, path: "/summaries/42/edit", route: unmatchedRoute, status: "404"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, strings.NewReader("{}")))

			assert.Equal(t, float64(1), testutil.ToFloat64(httpRequestsTotal.WithLabelValues(tt.method, tt.route, tt.status)))
		})
	}
}

func TestMetricsMiddleware_CardinalityBounded(t *testing.T) {
	httpRequestsTotal.Reset()

	mux := newMetricsMux()
	handler := MetricsMiddleware(mux)(mux)

	for _, p := range []string{"/a", "/b/1", "/c/2/3", "/wp-admin.php"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	assert.Equal(t, 1, testutil.CollectAndCount(httpRequestsTotal))
	assert.Equal(t, float64(4), testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "404")))
}

func TestMetricsMiddleware_InFlightReturnsToZero(t *testing.T) {
	mux := newMetricsMux()
	before := testutil.ToFloat64(httpRequestsInFlight)

	var during float64
	handler := MetricsMiddleware(mux)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = testutil.ToFloat64(httpRequestsInFlight)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/summaries", nil))

	assert.Equal(t, before+1, during)
	assert.Equal(t, before, testutil.ToFloat64(httpRequestsInFlight))
}

func TestMetricsHandler(t *testing.T) {
	httpRequestsTotal.WithLabelValues(http.MethodGet, "GET /health", "200").Inc()

	srv := httptest.NewServer(MetricsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "http_requests_total")
}
