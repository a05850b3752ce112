// internal/playback/state.go
package playback

import "strings"

// State represents the player state reported by an event source.
type State int

const (
	StateStopped State = iota
	StatePlaying
	StatePaused
	StateUnknown
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// IsActive returns true if a track is loaded (playing or paused).
func (s State) IsActive() bool {
	return s == StatePlaying || s == StatePaused
}

// ParseState maps a player-reported status string onto a State.
// Anything unrecognized becomes StateUnknown.
func ParseState(s string) State {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "playing", "play":
		return StatePlaying
	case "paused", "pause":
		return StatePaused
	case "stopped", "stop":
		return StateStopped
	default:
		return StateUnknown
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	*s = ParseState(string(b))
	return nil
}
