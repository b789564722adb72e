package summarize

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder records pipeline and model cache metrics.
// The Prometheus implementation is used in production; tests inject a fake
// or rely on the no-op default.
type MetricsRecorder interface {
	// RecordRequest counts a finished pipeline run by status (success|error|empty).
	RecordRequest(status string)

	// RecordDuration records the wall time of a pipeline run.
	RecordDuration(duration time.Duration)

	// RecordChunks records how many chunks a run was split into.
	RecordChunks(n int)

	// RecordSecondPass counts runs that triggered the condensation pass.
	RecordSecondPass()

	// RecordCacheHit counts model handle cache hits.
	RecordCacheHit()

	// RecordCacheMiss counts model handle cache misses (one per actual load attempt).
	RecordCacheMiss()

	// RecordModelLoad records a load attempt and whether it succeeded.
	RecordModelLoad(duration time.Duration, ok bool)
}

type noopMetrics struct{}

func (noopMetrics) RecordRequest(string)                {}
func (noopMetrics) RecordDuration(time.Duration)        {}
func (noopMetrics) RecordChunks(int)                    {}
func (noopMetrics) RecordSecondPass()                   {}
func (noopMetrics) RecordCacheHit()                     {}
func (noopMetrics) RecordCacheMiss()                    {}
func (noopMetrics) RecordModelLoad(time.Duration, bool) {}

// PrometheusMetrics implements MetricsRecorder with Prometheus collectors.
type PrometheusMetrics struct {
	requests     *prometheus.CounterVec
	duration     prometheus.Histogram
	chunks       prometheus.Histogram
	secondPass   prometheus.Counter
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	loadDuration *prometheus.HistogramVec
}

var (
	prometheusMetricsInstance *PrometheusMetrics
	prometheusMetricsOnce     sync.Once
)

// NewPrometheusMetrics returns the process-wide Prometheus recorder,
// registering its collectors on first use.
func NewPrometheusMetrics() *PrometheusMetrics {
	prometheusMetricsOnce.Do(func() {
		prometheusMetricsInstance = &PrometheusMetrics{
			requests: registerOrExisting(prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "summarization_requests_total",
					Help: "Total number of summarization pipeline runs",
				},
				[]string{"status"},
			)),
			duration: registerOrExisting(prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "summarization_duration_seconds",
				Help:    "Wall time of a summarization pipeline run",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			})),
			chunks: registerOrExisting(prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "summarization_chunks",
				Help:    "Number of chunks per summarization run",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
			})),
			secondPass: registerOrExisting(prometheus.NewCounter(prometheus.CounterOpts{
				Name: "summarization_second_pass_total",
				Help: "Total number of runs that condensed the stitched summary in a second pass",
			})),
			cacheHits: registerOrExisting(prometheus.NewCounter(prometheus.CounterOpts{
				Name: "model_cache_hits_total",
				Help: "Total number of model handle cache hits",
			})),
			cacheMisses: registerOrExisting(prometheus.NewCounter(prometheus.CounterOpts{
				Name: "model_cache_misses_total",
				Help: "Total number of model handle cache misses",
			})),
			loadDuration: registerOrExisting(prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "model_load_duration_seconds",
					Help:    "Time taken to load a model and tokenizer",
					Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
				},
				[]string{"status"},
			)),
		}
	})
	return prometheusMetricsInstance
}

// registerOrExisting registers c, returning the already registered collector
// when an identical one exists.
func registerOrExisting[C prometheus.Collector](c C) C {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

// RecordRequest implements MetricsRecorder.
func (p *PrometheusMetrics) RecordRequest(status string) {
	p.requests.WithLabelValues(status).Inc()
}

// RecordDuration implements MetricsRecorder.
func (p *PrometheusMetrics) RecordDuration(duration time.Duration) {
	p.duration.Observe(duration.Seconds())
}

// RecordChunks implements MetricsRecorder.
func (p *PrometheusMetrics) RecordChunks(n int) {
	p.chunks.Observe(float64(n))
}

// RecordSecondPass implements MetricsRecorder.
func (p *PrometheusMetrics) RecordSecondPass() {
	p.secondPass.Inc()
}

// RecordCacheHit implements MetricsRecorder.
func (p *PrometheusMetrics) RecordCacheHit() {
	p.cacheHits.Inc()
}

// RecordCacheMiss implements MetricsRecorder.
func (p *PrometheusMetrics) RecordCacheMiss() {
	p.cacheMisses.Inc()
}

// RecordModelLoad implements MetricsRecorder.
func (p *PrometheusMetrics) RecordModelLoad(duration time.Duration, ok bool) {
	status := "success"
	if !ok {
		status = "error"
	}
	p.loadDuration.WithLabelValues(status).Observe(duration.Seconds())
}
