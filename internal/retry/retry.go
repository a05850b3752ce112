// Package retry re-runs transport calls that failed for transient reasons.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy bounds how often and how long an operation is retried.
type Policy struct {
	Attempts     int           // total attempts including the first
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // cap for the exponential backoff
}

// Transient is used by backend clients for TLS and connection hiccups.
var Transient = Policy{
	Attempts:     3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     4 * time.Second,
}

// Do calls fn until it succeeds, fails with an error retryable rejects,
// runs out of attempts, or ctx is done. The last error is returned wrapped
// with the attempt count when attempts are exhausted.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func(ctx context.Context) error) error {
	attempts := max(p.Attempts, 1)
	delay := p.InitialDelay

	var lastErr error
	for attempt := range attempts {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			case <-timer.C:
			}
			delay *= 2
			if p.MaxDelay > 0 {
				delay = min(delay, p.MaxDelay)
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if retryable == nil || !retryable(err) {
			return err
		}
	}

	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
