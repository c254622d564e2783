// Package retry runs an operation again on transient failures with
// exponential backoff. The zero Policy makes exactly one attempt.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"commerce-sync/internal/syncerr"
)

// Policy describes how often and how patiently to retry.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first. Values below 1 mean 1.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps any single delay.
	MaxDelay time.Duration

	// Multiplier grows the delay after each retry.
	Multiplier float64

	// JitterFactor is the maximum jitter as a fraction of the delay (0.0 to 1.0).
	JitterFactor float64

	// Retryable decides whether an error is worth another attempt.
	// Defaults to syncerr.Retryable.
	Retryable func(error) bool
}

// None is the default policy: a single attempt.
var None = Policy{MaxAttempts: 1}

// Exponential returns a policy making up to attempts tries with sensible delays.
func Exponential(attempts int) Policy {
	return Policy{
		MaxAttempts:  attempts,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}
}

// NextDelay returns the delay before retry number attempt (0-based) and
// whether another attempt is allowed.
func (p Policy) NextDelay(attempt int) (time.Duration, bool) {
	if attempt+1 >= p.attempts() {
		return 0, false
	}

	mult := p.Multiplier
	if mult <= 0 {
		mult = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.JitterFactor > 0 {
		//nolint:gosec // jitter only
		delay += delay * p.JitterFactor * (2*rand.Float64() - 1)
		if delay < 0 {
			delay = float64(p.InitialDelay)
		}
	}

	return time.Duration(delay), true
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return syncerr.Retryable(err)
}

// Do runs op until it succeeds, fails permanently, the policy is exhausted
// or ctx is done. It returns the last error.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil || !p.retryable(err) {
			return err
		}

		delay, ok := p.NextDelay(attempt)
		if !ok {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
