// Package backoff is the single retry helper shared by page navigation and
// transcription. Callers supply a Policy (how long to wait, how many tries)
// and a Classifier (which errors are worth another try).
package backoff

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/avast/retry-go/v4"
)

// DefaultJitter is the upper bound of the multiplicative jitter applied by
// Exponential policies.
const DefaultJitter = 0.1

// Policy controls how many attempts are made and how long to wait between them.
type Policy struct {
	// Attempts is the maximum number of calls to the operation, including the first.
	Attempts int
	// Delay returns the wait after the given failed attempt (1-based).
	Delay func(attempt int) time.Duration
	// OnRetry, if set, is called after each failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Fixed waits the same interval between every attempt.
func Fixed(interval time.Duration, attempts int) Policy {
	return Policy{
		Attempts: attempts,
		Delay:    func(int) time.Duration { return interval },
	}
}

// Exponential waits min(base * 2^(attempt-1) * (1 + jitter), max) with jitter
// drawn uniformly from [0, DefaultJitter).
func Exponential(base, max time.Duration, attempts int) Policy {
	return ExponentialWithJitter(base, max, attempts, func() float64 {
		return rand.Float64() * DefaultJitter
	})
}

// ExponentialWithJitter is Exponential with an explicit jitter source.
func ExponentialWithJitter(base, max time.Duration, attempts int, jitter func() float64) Policy {
	return Policy{
		Attempts: attempts,
		Delay: func(attempt int) time.Duration {
			return ExponentialDelay(base, max, attempt, jitter())
		},
	}
}

// ExponentialDelay computes one exponential wait for a 1-based attempt.
func ExponentialDelay(base, max time.Duration, attempt int, jitter float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(base) * math.Pow(2, float64(attempt-1)) * (1 + jitter)
	if d >= float64(max) {
		return max
	}
	return time.Duration(d)
}

// Classifier reports whether an error is retryable.
type Classifier func(error) bool

// Always retries every error.
func Always(error) bool { return true }

// Do calls op until it succeeds, the classifier rejects its error, the policy
// runs out of attempts or ctx is done. op receives the 1-based attempt number.
// The returned error is the last error op produced, or ctx.Err().
func Do(ctx context.Context, p Policy, retryable Classifier, op func(attempt int) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if retryable == nil {
		retryable = Always
	}

	// Attempts are counted here; retry-go's delay index is not relied on.
	attempt := 0
	err := retry.Do(
		func() error {
			attempt++
			return op(attempt)
		},
		retry.Context(ctx),
		retry.Attempts(uint(p.Attempts)),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return false
			}
			return retryable(err)
		}),
		retry.OnRetry(func(_ uint, err error) {
			if p.OnRetry != nil && attempt < p.Attempts {
				p.OnRetry(attempt, err)
			}
		}),
		retry.DelayType(func(_ uint, _ error, _ *retry.Config) time.Duration {
			if p.Delay == nil {
				return 0
			}
			return p.Delay(attempt)
		}),
	)
	return err
}
