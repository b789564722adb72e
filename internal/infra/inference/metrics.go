package inference

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// CallMetricsRecorder records per-call backend metrics.
type CallMetricsRecorder interface {
	// RecordCall records one backend operation (load, tokenize, detokenize,
	// summarize) with its outcome.
	RecordCall(backend, op, status string, duration time.Duration)

	// RecordBreakerState publishes the current circuit breaker state.
	RecordBreakerState(backend string, state gobreaker.State)
}

type noopCallMetrics struct{}

func (noopCallMetrics) RecordCall(string, string, string, time.Duration) {}
func (noopCallMetrics) RecordBreakerState(string, gobreaker.State)       {}

// PrometheusCallMetrics implements CallMetricsRecorder with Prometheus.
type PrometheusCallMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	breaker  *prometheus.GaugeVec
}

var (
	callMetricsInstance *PrometheusCallMetrics
	callMetricsOnce     sync.Once
)

func getOrCreateCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(opts, labels)
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec)
		}
		return promauto.NewCounterVec(opts, labels)
	}
	return c
}

func getOrCreateHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(opts, labels)
	if err := prometheus.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.HistogramVec)
		}
		return promauto.NewHistogramVec(opts, labels)
	}
	return h
}

func getOrCreateGaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(opts, labels)
	if err := prometheus.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.GaugeVec)
		}
		return promauto.NewGaugeVec(opts, labels)
	}
	return g
}

// NewPrometheusCallMetrics returns the process-wide recorder, registering
// the collectors on first use.
func NewPrometheusCallMetrics() *PrometheusCallMetrics {
	callMetricsOnce.Do(func() {
		callMetricsInstance = &PrometheusCallMetrics{
			calls: getOrCreateCounterVec(prometheus.CounterOpts{
				Name: "inference_calls_total",
				Help: "Total number of inference backend calls by backend, operation and status",
			}, []string{"backend", "op", "status"}),
			duration: getOrCreateHistogramVec(prometheus.HistogramOpts{
				Name:    "inference_call_duration_seconds",
				Help:    "Duration of inference backend calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			}, []string{"backend", "op"}),
			breaker: getOrCreateGaugeVec(prometheus.GaugeOpts{
				Name: "inference_circuit_breaker_state",
				Help: "Circuit breaker state per backend (0=closed, 1=half-open, 2=open)",
			}, []string{"backend"}),
		}
	})
	return callMetricsInstance
}

// RecordCall implements CallMetricsRecorder.
func (m *PrometheusCallMetrics) RecordCall(backend, op, status string, duration time.Duration) {
	m.calls.WithLabelValues(backend, op, status).Inc()
	m.duration.WithLabelValues(backend, op).Observe(duration.Seconds())
}

// RecordBreakerState implements CallMetricsRecorder.
func (m *PrometheusCallMetrics) RecordBreakerState(backend string, state gobreaker.State) {
	var v float64
	switch state {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.breaker.WithLabelValues(backend).Set(v)
}
