package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medsum/internal/resilience/retry"
)

func TestCall_Success(t *testing.T) {
	metrics := &fakeCallMetrics{}
	g := newGuard(fastGuard("remote"), metrics, nil)

	got, err := call(context.Background(), g, "summarize", 0, func(context.Context) (string, error) {
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, []recordedCall{{"remote", "summarize", "success"}}, metrics.snapshot())
}

func TestCall_RetriesTransientErrors(t *testing.T) {
	g := newGuard(fastGuard("remote"), nil, nil)

	attempts := 0
	got, err := call(context.Background(), g, "summarize", 0, func(context.Context) (int, error) {
		attempts++
		if attempts == 1 {
			return 0, &retry.HTTPError{StatusCode: 503, Message: "loading"}
		}
		return 7, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, 2, attempts)
}

func TestCall_DoesNotRetryClientErrors(t *testing.T) {
	metrics := &fakeCallMetrics{}
	g := newGuard(fastGuard("remote"), metrics, nil)

	attempts := 0
	_, err := call(context.Background(), g, "load", 0, func(context.Context) (string, error) {
		attempts++
		return "", &retry.HTTPError{StatusCode: 404, Message: "no such model"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Contains(t, err.Error(), "remote load")

	var httpErr *retry.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, 404, httpErr.StatusCode)
	assert.Equal(t, "error", metrics.snapshot()[0].status)
}

func TestCallOnce_DoesNotRetryTransientErrors(t *testing.T) {
	metrics := &fakeCallMetrics{}
	g := newGuard(fastGuard("remote"), metrics, nil)

	attempts := 0
	_, err := callOnce(context.Background(), g, "load", 0, func(context.Context) (string, error) {
		attempts++
		return "", &retry.HTTPError{StatusCode: 503, Message: "weights unavailable"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.NotContains(t, err.Error(), "max retry attempts")

	var httpErr *retry.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, 503, httpErr.StatusCode)
	assert.Equal(t, []recordedCall{{"remote", "load", "error"}}, metrics.snapshot())
}

func TestCall_OpenBreakerRejects(t *testing.T) {
	metrics := &fakeCallMetrics{}
	cfg := fastGuard("remote")
	cfg.RetryAttempts = 1
	g := newGuard(cfg, metrics, nil)

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		_, _ = call(context.Background(), g, "summarize", 0, func(context.Context) (string, error) {
			return "", boom
		})
	}
	require.Equal(t, gobreaker.StateOpen, g.State())

	called := false
	_, err := call(context.Background(), g, "summarize", 0, func(context.Context) (string, error) {
		called = true
		return "", nil
	})

	assert.False(t, called)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	calls := metrics.snapshot()
	assert.Equal(t, "rejected", calls[len(calls)-1].status)
	assert.Contains(t, metrics.states, gobreaker.StateOpen)
}

func TestCall_AppliesTimeout(t *testing.T) {
	g := newGuard(fastGuard("remote"), nil, nil)

	_, err := call(context.Background(), g, "summarize", 20*time.Millisecond, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
