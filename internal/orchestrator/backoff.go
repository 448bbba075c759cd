package orchestrator

import (
	"context"
	"math/rand"
	"time"
)

// backoffPolicy is the retry/backoff shape from spec.md §4.8: base 1s,
// factor 2, capped at 10s, with +/-25% jitter. Grounded on the 429-retry
// sleep loop in the LLM harness's HTTP transport heritage
// (ecoker-launchpad's OpenAIProvider.Send), generalized from a fixed
// per-attempt multiplier into a reusable exponential-backoff helper.
type backoffPolicy struct {
	Base       time.Duration
	Max        time.Duration
	Factor     float64
	JitterFrac float64
	MaxRetries int
}

func defaultBackoff() backoffPolicy {
	return backoffPolicy{Base: time.Second, Max: 10 * time.Second, Factor: 2, JitterFrac: 0.25, MaxRetries: 3}
}

func (p backoffPolicy) delay(attempt int) time.Duration {
	d := float64(p.Base)
	for i := 0; i < attempt; i++ {
		d *= p.Factor
	}
	if d > float64(p.Max) {
		d = float64(p.Max)
	}
	jitter := d * p.JitterFrac * (2*rand.Float64() - 1)
	d += jitter
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// retryRetryable calls fn up to p.MaxRetries+1 times, sleeping between
// attempts per p.delay, but only retries when isRetryable(err) reports
// true — a non-retryable error (bad input, auth) returns immediately.
func retryRetryable(ctx context.Context, p backoffPolicy, isRetryable func(error) bool, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.delay(attempt - 1)):
			}
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}
	}
	return lastErr
}
