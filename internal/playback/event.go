package playback

import (
	"strings"
	"time"
)

// Event is a point-in-time observation from a player.
type Event struct {
	State      State  `json:"state"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Source     string `json:"source"`

	// Artwork is image data the player already had, if any.
	Artwork []byte `json:"artwork,omitempty"`
}

// Valid reports whether the event identifies a track.
// Events without a title or artist are ignored by consumers.
func (e Event) Valid() bool {
	return strings.TrimSpace(e.Title) != "" && strings.TrimSpace(e.Artist) != ""
}

// Key returns the track identity of the event.
func (e Event) Key() TrackKey {
	return Key(e.Artist, e.Title, e.Album)
}

// DurationSec returns the track length in whole seconds, 0 if unknown.
func (e Event) DurationSec() int {
	if e.DurationMs <= 0 {
		return 0
	}
	return int(e.DurationMs / 1000)
}

// Duration returns the track length.
func (e Event) Duration() time.Duration {
	return time.Duration(e.DurationMs) * time.Millisecond
}

// TrackKey identifies a listening session independent of capitalization.
type TrackKey string

// Key builds the lowercased "artist|title|album" identity.
// The album segment is omitted when empty.
func Key(artist, title, album string) TrackKey {
	if album == "" {
		return TrackKey(strings.ToLower(artist + "|" + title))
	}
	return TrackKey(strings.ToLower(artist + "|" + title + "|" + album))
}
