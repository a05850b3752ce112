// Package icons holds the glyphs the command line uses for scrobble status
// and playback state.
package icons

import (
	"github.com/llehouerou/scrobd/internal/playback"
	"github.com/llehouerou/scrobd/internal/state"
)

// Style represents the icon style to use.
type Style string

const (
	StyleNerd    Style = "nerd"
	StyleUnicode Style = "unicode"
	StyleNone    Style = "none"
)

// Icons holds the icon characters for the current style.
type Icons struct {
	Scrobbled  string
	NowPlaying string
	Pending    string
	Failed     string
	Playing    string
	Paused     string
	Favorite   string
}

var (
	nerdIcons = Icons{
		Scrobbled:  "\uf00c",  // nf-fa-check
		NowPlaying: "󰐊",      // nf-md-play
		Pending:    "󰔟",      // nf-md-timer_sand
		Failed:     "\uf00d",  // nf-fa-times
		Playing:    "󰐊",      // nf-md-play
		Paused:     "󰏤",      // nf-md-pause
		Favorite:   "󰣐",      // nf-md-heart
	}

	unicodeIcons = Icons{
		Scrobbled:  "✓",
		NowPlaying: "▶",
		Pending:    "…",
		Failed:     "✗",
		Playing:    "▶",
		Paused:     "⏸",
		Favorite:   "♥",
	}

	noneIcons = Icons{
		Scrobbled:  "scrobbled",
		NowPlaying: "now playing",
		Pending:    "pending",
		Failed:     "failed",
		Playing:    "playing",
		Paused:     "paused",
		Favorite:   "*",
	}

	// current holds the active icon set
	current = noneIcons
)

// Init initializes the icons based on the style.
// Call this once at startup with the config value.
func Init(style string) {
	switch Style(style) {
	case StyleNerd:
		current = nerdIcons
	case StyleUnicode:
		current = unicodeIcons
	default:
		current = noneIcons
	}
}

// Status returns the glyph for a scrobble log status.
func Status(s state.Status) string {
	switch s {
	case state.StatusScrobbled:
		return current.Scrobbled
	case state.StatusNowPlaying:
		return current.NowPlaying
	case state.StatusFailed:
		return current.Failed
	default:
		return current.Pending
	}
}

// Playback returns the glyph for a player state. States without a glyph
// are returned as their lowercase name.
func Playback(s playback.State) string {
	switch s {
	case playback.StatePlaying:
		return current.Playing
	case playback.StatePaused:
		return current.Paused
	default:
		text, _ := s.MarshalText()
		return string(text)
	}
}

// FormatTitle prefixes a track title with the favorite icon when loved.
func FormatTitle(title string, loved bool) string {
	if !loved {
		return title
	}
	return current.Favorite + " " + title
}

// Favorite returns the favorite/heart icon.
func Favorite() string {
	return current.Favorite
}
