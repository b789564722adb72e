package inference

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"medsum/internal/resilience/circuitbreaker"
)

func fastGuard(backend string) GuardConfig {
	return GuardConfig{
		Backend:       backend,
		Timeout:       2 * time.Second,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
		CircuitBreaker: circuitbreaker.Config{
			Name:             backend,
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          time.Minute,
			FailureThreshold: 0.5,
			MinRequests:      3,
		},
	}
}

type recordedCall struct {
	backend, op, status string
}

type fakeCallMetrics struct {
	mu     sync.Mutex
	calls  []recordedCall
	states []gobreaker.State
}

func (f *fakeCallMetrics) RecordCall(backend, op, status string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{backend, op, status})
}

func (f *fakeCallMetrics) RecordBreakerState(_ string, state gobreaker.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
}

func (f *fakeCallMetrics) snapshot() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}
