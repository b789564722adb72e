// Package resilience holds the fault tolerance used around inference
// backend calls.
//
//   - circuitbreaker: sony/gobreaker wrapper with per-backend settings
//   - retry: exponential backoff with jitter for transient failures
//
// A retried call checks the breaker on every attempt:
//
//	cb := circuitbreaker.New(circuitbreaker.InferenceConfig("remote"))
//	out, err := retry.Value(ctx, retry.InferenceConfig(3), func() (string, error) {
//	    return circuitbreaker.Do(cb, func() (string, error) {
//	        return callModelServer(ctx)
//	    })
//	})
package resilience
