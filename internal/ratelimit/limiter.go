// Package ratelimit spaces outbound requests to services with a politeness
// policy, such as MusicBrainz's one request per second.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MusicBrainz requires at most one request per second per client.
const MusicBrainzInterval = time.Second

// Limiter hands out request slots at least interval apart.
// A single Limiter is meant to be shared by every caller hitting the same
// service, whatever they are looking up.
type Limiter struct {
	interval time.Duration

	mu          sync.Mutex
	lastRequest time.Time
}

// New creates a limiter enforcing the given minimum spacing.
func New(interval time.Duration) *Limiter {
	return &Limiter{interval: interval}
}

// Wait blocks until the caller's slot comes up.
// Slots are claimed under the lock before sleeping, so concurrent callers
// queue behind each other instead of all waking at the same instant.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	now := time.Now()
	var waitTime time.Duration
	if l.lastRequest.IsZero() {
		l.lastRequest = now
	} else if next := l.lastRequest.Add(l.interval); now.Before(next) {
		waitTime = next.Sub(now)
		l.lastRequest = next
	} else {
		l.lastRequest = now
	}
	l.mu.Unlock()

	if waitTime <= 0 {
		return nil
	}

	timer := time.NewTimer(waitTime)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Defer pushes the next available slot back by d, typically from a
// Retry-After header. It never moves the slot earlier.
func (l *Limiter) Defer(d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	next := time.Now().Add(d).Add(-l.interval)
	if l.lastRequest.Before(next) {
		l.lastRequest = next
	}
}

// Interval returns the configured spacing.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
