// Package inference provides the model backends behind the summarization
// pipeline: a self-hosted seq2seq model server, the OpenAI and Anthropic
// APIs, and a deterministic in-memory stub.
package inference

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sony/gobreaker"

	"medsum/internal/config"
	"medsum/internal/resilience/circuitbreaker"
	"medsum/internal/usecase/summarize"
)

// Backend is the configured model loader plus its health signals.
type Backend struct {
	name   config.Backend
	loader summarize.Loader
	guard  *guard
	remote *RemoteLoader
}

type options struct {
	metrics    CallMetricsRecorder
	logger     *slog.Logger
	httpClient *http.Client
}

// Option configures New.
type Option func(*options)

// WithCallMetrics sets the metrics recorder for backend calls.
func WithCallMetrics(m CallMetricsRecorder) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHTTPClient sets the HTTP client used by the remote backend.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New builds the backend selected by cfg.
func New(cfg *config.InferenceConfig, opts ...Option) (*Backend, error) {
	o := options{metrics: noopCallMetrics{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	gc := GuardConfig{
		Backend:        string(cfg.Backend),
		Timeout:        cfg.Timeouts.Call,
		RequestsPerSec: cfg.RateLimit.RequestsPerSecond,
		Burst:          cfg.RateLimit.Burst,
		RetryAttempts:  cfg.RetryMaxAttempts,
		CircuitBreaker: breakerConfig(cfg),
	}

	b := &Backend{name: cfg.Backend}
	switch cfg.Backend {
	case config.BackendRemote:
		r := NewRemoteLoader(RemoteConfig{
			BaseURL:     cfg.BaseURL,
			LoadTimeout: cfg.Timeouts.Load,
			Guard:       gc,
			HTTPClient:  o.httpClient,
		}, o.metrics, o.logger)
		b.loader, b.guard, b.remote = r, r.guard, r
	case config.BackendOpenAI:
		l := NewOpenAILoader(OpenAIConfig{
			APIKey:   cfg.OpenAIAPIKey,
			BaseURL:  cfg.BaseURL,
			Encoding: cfg.Encoding,
			Guard:    gc,
		}, o.metrics, o.logger)
		b.loader, b.guard = l, l.guard
	case config.BackendClaude:
		l := NewClaudeLoader(ClaudeConfig{
			APIKey:   cfg.AnthropicAPIKey,
			Encoding: cfg.Encoding,
			Guard:    gc,
		}, o.metrics, o.logger)
		b.loader, b.guard = l, l.guard
	case config.BackendStub:
		b.loader = NewStubLoader(nil)
	default:
		return nil, fmt.Errorf("unknown inference backend %q", cfg.Backend)
	}

	o.logger.Info("inference backend configured",
		slog.String("backend", string(cfg.Backend)),
		slog.String("base_url", cfg.BaseURL))

	return b, nil
}

func breakerConfig(cfg *config.InferenceConfig) circuitbreaker.Config {
	cb := circuitbreaker.InferenceConfig(string(cfg.Backend))
	if cfg.CircuitBreaker.MaxRequests > 0 {
		cb.MaxRequests = cfg.CircuitBreaker.MaxRequests
	}
	if cfg.CircuitBreaker.Interval > 0 {
		cb.Interval = cfg.CircuitBreaker.Interval
	}
	if cfg.CircuitBreaker.Timeout > 0 {
		cb.Timeout = cfg.CircuitBreaker.Timeout
	}
	if cfg.CircuitBreaker.FailureThreshold > 0 {
		cb.FailureThreshold = cfg.CircuitBreaker.FailureThreshold
	}
	if cfg.CircuitBreaker.MinRequests > 0 {
		cb.MinRequests = cfg.CircuitBreaker.MinRequests
	}
	return cb
}

// Load implements summarize.Loader.
func (b *Backend) Load(ctx context.Context, req summarize.LoadRequest) (summarize.Model, error) {
	return b.loader.Load(ctx, req)
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return string(b.name)
}

// BreakerState returns the circuit breaker state as a string.
// Backends without a breaker always report "closed".
func (b *Backend) BreakerState() string {
	if b.guard == nil {
		return gobreaker.StateClosed.String()
	}
	return b.guard.State().String()
}

// Available reports whether calls are currently admitted.
func (b *Backend) Available() bool {
	return b.guard == nil || b.guard.State() != gobreaker.StateOpen
}

// CUDAAvailable reports whether the backend can place models on a GPU.
// Only the remote backend manages devices; hosted APIs and the stub
// always answer false.
func (b *Backend) CUDAAvailable(ctx context.Context) (bool, error) {
	if b.remote == nil {
		return false, nil
	}
	return b.remote.CUDAAvailable(ctx)
}

// Stub returns the in-memory loader when the stub backend is selected.
func (b *Backend) Stub() (*StubLoader, bool) {
	s, ok := b.loader.(*StubLoader)
	return s, ok
}
