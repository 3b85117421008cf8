package resilience

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy describes the bounded retry schedule for upstream calls.
// Only transport failures and rate limiting are retried; every other error
// propagates after the first attempt.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialInterval is the base delay before the first retry.
	InitialInterval time.Duration
	// Multiplier grows the delay between consecutive retries.
	Multiplier float64
	// RandomizationFactor jitters each computed delay by ±factor.
	RandomizationFactor float64
	// MaxInterval caps any single delay.
	MaxInterval time.Duration
}

// DefaultRetryPolicy returns the production schedule: 3 attempts total,
// exponential backoff starting at 2 seconds, doubling, with ±40% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:         3,
		InitialInterval:     2 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.4,
		MaxInterval:         30 * time.Second,
	}
}

// newBackOff builds the jittered exponential schedule for one call.
// The schedule is per call and never shared; attempt counting is handled
// by the wrapper, so MaxElapsedTime is disabled here.
func (p RetryPolicy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.RandomizationFactor
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
