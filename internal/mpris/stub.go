//go:build !linux

package mpris

import (
	"log/slog"

	"github.com/llehouerou/scrobd/internal/playback"
)

// Source is unavailable on non-Linux platforms.
type Source struct{}

// NewSource returns ErrUnsupported on non-Linux platforms.
func NewSource(_ *slog.Logger, _ []string) (*Source, error) {
	return nil, ErrUnsupported
}

// Events returns nil on non-Linux platforms.
func (s *Source) Events() <-chan playback.Event {
	return nil
}

// Close is a no-op on non-Linux platforms.
func (s *Source) Close() error {
	return nil
}
