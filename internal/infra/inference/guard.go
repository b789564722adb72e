package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"medsum/internal/resilience/circuitbreaker"
	"medsum/internal/resilience/retry"
)

// ErrBackendUnavailable is returned while the backend circuit breaker is open.
var ErrBackendUnavailable = errors.New("inference backend unavailable: circuit breaker open")

// guard applies the outbound call policy shared by every remote backend:
// rate limiting, a per-call deadline, a circuit breaker around each attempt
// and, except for model loads, retry on transient failures.
type guard struct {
	backend string
	breaker *circuitbreaker.CircuitBreaker
	retry   retry.Config
	limiter *rate.Limiter
	timeout time.Duration
	metrics CallMetricsRecorder
	logger  *slog.Logger
}

// GuardConfig configures a guard.
type GuardConfig struct {
	Backend        string
	Timeout        time.Duration
	RequestsPerSec float64
	Burst          int
	RetryAttempts  int
	// RetryDelay overrides the initial backoff when positive.
	RetryDelay     time.Duration
	CircuitBreaker circuitbreaker.Config
}

func newGuard(cfg GuardConfig, metrics CallMetricsRecorder, logger *slog.Logger) *guard {
	if metrics == nil {
		metrics = noopCallMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	rc := retry.InferenceConfig(cfg.RetryAttempts)
	if cfg.RetryDelay > 0 {
		rc.InitialDelay = cfg.RetryDelay
		rc.MaxDelay = 4 * cfg.RetryDelay
	}
	g := &guard{
		backend: cfg.Backend,
		retry:   rc,
		limiter: rate.NewLimiter(limit, burst),
		timeout: cfg.Timeout,
		metrics: metrics,
		logger:  logger,
	}
	g.breaker = circuitbreaker.New(cfg.CircuitBreaker, func(_ string, _, to gobreaker.State) {
		g.metrics.RecordBreakerState(g.backend, to)
	})
	metrics.RecordBreakerState(cfg.Backend, gobreaker.StateClosed)
	return g
}

// call runs fn under the guard's policy. op labels metrics and logs.
func call[T any](ctx context.Context, g *guard, op string, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	return invoke(ctx, g, op, timeout, true, fn)
}

// callOnce is call without retries. Model loads use it: a failed load is
// reported to the caller, who decides whether to try again.
func callOnce[T any](ctx context.Context, g *guard, op string, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	return invoke(ctx, g, op, timeout, false, fn)
}

func invoke[T any](ctx context.Context, g *guard, op string, timeout time.Duration, retried bool, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if timeout <= 0 {
		timeout = g.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	attempt := func() (T, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return zero, fmt.Errorf("rate limiter: %w", err)
		}
		v, err := circuitbreaker.Do(g.breaker, func() (T, error) {
			return fn(ctx)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			g.logger.WarnContext(ctx, "inference circuit breaker rejected call",
				slog.String("backend", g.backend),
				slog.String("op", op),
				slog.String("state", g.breaker.State().String()))
			return zero, ErrBackendUnavailable
		}
		return v, err
	}

	start := time.Now()
	var (
		out T
		err error
	)
	if retried {
		out, err = retry.Value(ctx, g.retry, attempt)
	} else {
		out, err = attempt()
	}
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
		if errors.Is(err, ErrBackendUnavailable) {
			status = "rejected"
		}
	}
	g.metrics.RecordCall(g.backend, op, status, duration)

	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", g.backend, op, err)
	}
	return out, nil
}

// State reports the breaker state.
func (g *guard) State() gobreaker.State {
	return g.breaker.State()
}
