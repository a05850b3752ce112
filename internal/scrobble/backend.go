// Package scrobble fans now-playing, scrobble and love actions out to every
// configured tracking service and reduces their results.
package scrobble

import (
	"context"
	"time"
)

// Track is the information submitted to a backend.
type Track struct {
	Artist      string
	Title       string
	Album       string
	DurationSec int       // 0 when unknown
	StartedAt   time.Time // listen start, used as the scrobble timestamp
}

// Backend is one remote tracking service.
type Backend interface {
	// Name is the human-readable service name used in error messages.
	Name() string
	// Enabled reports whether the service is turned on in configuration.
	Enabled() bool
	// Authenticated reports whether credentials are available.
	Authenticated() bool

	NowPlaying(ctx context.Context, t Track) error
	Scrobble(ctx context.Context, t Track) error
	SetLoved(ctx context.Context, t Track, loved bool) error
	IsLoved(ctx context.Context, t Track) (bool, error)
}
