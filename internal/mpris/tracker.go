// Package mpris turns MPRIS players on the D-Bus session bus into playback
// events.
package mpris

import (
	"errors"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/types"

	"github.com/llehouerou/scrobd/internal/playback"
)

// ErrUnsupported is returned by NewSource on platforms without D-Bus.
var ErrUnsupported = errors.New("mpris: not supported on this platform")

const (
	busPrefix = "org.mpris.MediaPlayer2."

	propStatus   = "PlaybackStatus"
	propMetadata = "Metadata"
)

// player is the last known state of one MPRIS player.
type player struct {
	status  types.PlaybackStatus
	meta    types.Metadata
	url     string
	artwork []byte
}

// tracker folds PropertiesChanged payloads into per-player state and decides
// when a playback event is due.
type tracker struct {
	players map[string]*player
	ignore  []string
	art     func(artURL, trackURL string) []byte
}

func newTracker(ignore []string) *tracker {
	lowered := make([]string, 0, len(ignore))
	for _, ig := range ignore {
		if ig = strings.ToLower(strings.TrimSpace(ig)); ig != "" {
			lowered = append(lowered, ig)
		}
	}
	return &tracker{
		players: make(map[string]*player),
		ignore:  lowered,
		art:     loadArtwork,
	}
}

// sourceName returns the short player name for a bus name, e.g.
// "org.mpris.MediaPlayer2.firefox.instance_1_42" becomes "firefox".
func sourceName(busName string) string {
	name := strings.TrimPrefix(busName, busPrefix)
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	return name
}

func (t *tracker) ignored(busName string) bool {
	name := strings.ToLower(strings.TrimPrefix(busName, busPrefix))
	for _, ig := range t.ignore {
		if strings.HasPrefix(name, ig) {
			return true
		}
	}
	return false
}

// update applies changed player properties. It returns an event when the
// playback status or the track changed.
func (t *tracker) update(busName string, changed map[string]dbus.Variant) (playback.Event, bool) {
	if !strings.HasPrefix(busName, busPrefix) || t.ignored(busName) {
		return playback.Event{}, false
	}

	p, ok := t.players[busName]
	if !ok {
		p = &player{status: types.PlaybackStatusStopped}
		t.players[busName] = p
	}

	dirty := false
	if v, ok := changed[propStatus]; ok {
		if s, ok := v.Value().(string); ok && types.PlaybackStatus(s) != p.status {
			p.status = types.PlaybackStatus(s)
			dirty = true
		}
	}
	if v, ok := changed[propMetadata]; ok {
		if m, ok := v.Value().(map[string]dbus.Variant); ok {
			meta, u := parseMetadata(m)
			// Players clear metadata when stopping; keep the last track so
			// the stop can still be attributed.
			if meta.Title != "" && !sameTrack(meta, u, p) {
				if meta.ArtUrl != p.meta.ArtUrl || u != p.url {
					p.artwork = t.art(meta.ArtUrl, u)
				}
				p.meta, p.url = meta, u
				dirty = true
			}
		}
	}

	if !dirty {
		return playback.Event{}, false
	}
	return p.event(busName), true
}

// remove forgets a player that left the bus. A player that vanished while
// active yields a stop event.
func (t *tracker) remove(busName string) (playback.Event, bool) {
	p, ok := t.players[busName]
	if !ok {
		return playback.Event{}, false
	}
	delete(t.players, busName)
	if p.status == types.PlaybackStatusStopped || p.meta.Title == "" {
		return playback.Event{}, false
	}
	p.status = types.PlaybackStatusStopped
	return p.event(busName), true
}

func (p *player) event(busName string) playback.Event {
	return playback.Event{
		State:      stateOf(p.status),
		Title:      p.meta.Title,
		Artist:     strings.Join(p.meta.Artist, ", "),
		Album:      p.meta.Album,
		DurationMs: int64(p.meta.Length) / 1000,
		Source:     sourceName(busName),
		Artwork:    p.artwork,
	}
}

func sameTrack(meta types.Metadata, u string, p *player) bool {
	return meta.TrackId == p.meta.TrackId &&
		meta.Title == p.meta.Title &&
		meta.Album == p.meta.Album &&
		meta.Length == p.meta.Length &&
		meta.ArtUrl == p.meta.ArtUrl &&
		u == p.url &&
		strings.Join(meta.Artist, "\x00") == strings.Join(p.meta.Artist, "\x00")
}

func stateOf(s types.PlaybackStatus) playback.State {
	switch s {
	case types.PlaybackStatusPlaying:
		return playback.StatePlaying
	case types.PlaybackStatusPaused:
		return playback.StatePaused
	case types.PlaybackStatusStopped:
		return playback.StateStopped
	}
	return playback.StateUnknown
}

// parseMetadata reads the xesam/mpris metadata map. Players disagree on
// integer widths and on whether artist is a list, so both are accepted.
func parseMetadata(m map[string]dbus.Variant) (types.Metadata, string) {
	var meta types.Metadata
	var trackURL string

	for k, v := range m {
		switch k {
		case "mpris:trackid":
			switch id := v.Value().(type) {
			case dbus.ObjectPath:
				meta.TrackId = id
			case string:
				meta.TrackId = dbus.ObjectPath(id)
			}
		case "mpris:length":
			meta.Length = types.Microseconds(toInt64(v.Value()))
		case "mpris:artUrl":
			meta.ArtUrl, _ = v.Value().(string)
		case "xesam:title":
			meta.Title, _ = v.Value().(string)
		case "xesam:album":
			meta.Album, _ = v.Value().(string)
		case "xesam:artist":
			switch a := v.Value().(type) {
			case []string:
				meta.Artist = a
			case string:
				meta.Artist = []string{a}
			}
		case "xesam:trackNumber":
			meta.TrackNumber = int(toInt64(v.Value()))
		case "xesam:url":
			trackURL, _ = v.Value().(string)
		}
	}
	return meta, trackURL
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case uint64:
		return int64(n) //nolint:gosec // track lengths fit
	case int32:
		return int64(n)
	case uint32:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
