package state

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindOrCreate_ReusesRecentUnscrobbled(t *testing.T) {
	m, now := setupTestManager(t)

	first, err := m.FindOrCreate("Radiohead", "Reckoner", "In Rainbows", "mpd")
	require.NoError(t, err)

	*now = now.Add(5 * time.Minute)
	second, err := m.FindOrCreate("RADIOHEAD", "reckoner", "", "spotify")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestFindOrCreate_NewEntryAfterWindow(t *testing.T) {
	m, now := setupTestManager(t)

	first, err := m.FindOrCreate("Radiohead", "Reckoner", "", "mpd")
	require.NoError(t, err)

	*now = now.Add(11 * time.Minute)
	second, err := m.FindOrCreate("Radiohead", "Reckoner", "", "mpd")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestFindOrCreate_NewEntryAfterScrobble(t *testing.T) {
	m, _ := setupTestManager(t)

	first, err := m.FindOrCreate("Radiohead", "Reckoner", "", "mpd")
	require.NoError(t, err)
	require.NoError(t, m.MarkScrobbled(first))

	second, err := m.FindOrCreate("Radiohead", "Reckoner", "", "mpd")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestMutators_TerminalOverriding(t *testing.T) {
	m, _ := setupTestManager(t)
	ref, err := m.FindOrCreate("Portishead", "Roads", "Dummy", "mpd")
	require.NoError(t, err)

	e := mustEntry(t, m, ref)
	assert.Equal(t, StatusPending, e.Status())
	assert.Equal(t, "Dummy", e.Album)

	require.NoError(t, m.MarkNowPlayingFailed(ref, "Last.fm: down"))
	e = mustEntry(t, m, ref)
	assert.Equal(t, StatusFailed, e.Status())
	assert.Equal(t, "Last.fm: down", e.ErrorMessage)

	require.NoError(t, m.MarkNowPlayingSent(ref))
	e = mustEntry(t, m, ref)
	assert.Equal(t, StatusNowPlaying, e.Status())
	assert.Empty(t, e.ErrorMessage)
	assert.False(t, e.NowPlayingFailed)

	require.NoError(t, m.MarkScrobbleFailed(ref, "Last.fm: x; ListenBrainz: y"))
	e = mustEntry(t, m, ref)
	assert.Equal(t, StatusFailed, e.Status())
	assert.Equal(t, "Last.fm: x; ListenBrainz: y", e.ErrorMessage)

	require.NoError(t, m.MarkScrobbled(ref))
	e = mustEntry(t, m, ref)
	assert.Equal(t, StatusScrobbled, e.Status())
	assert.Empty(t, e.ErrorMessage)
	require.NotNil(t, e.ScrobbledAt)
}

func TestMutators_UnknownRef(t *testing.T) {
	m, _ := setupTestManager(t)
	err := m.MarkScrobbled("missing")
	assert.True(t, errors.Is(err, ErrEntryNotFound))
}

func TestLogEntry_StatusPriority(t *testing.T) {
	tests := []struct {
		name  string
		entry LogEntry
		want  Status
	}{
		{"pending", LogEntry{}, StatusPending},
		{"now playing", LogEntry{NowPlayingSent: true}, StatusNowPlaying},
		{"scrobbled beats now playing", LogEntry{NowPlayingSent: true, Scrobbled: true}, StatusScrobbled},
		{"now playing failure beats scrobbled", LogEntry{Scrobbled: true, NowPlayingFailed: true}, StatusFailed},
		{"scrobble failure", LogEntry{ScrobbleFailed: true}, StatusFailed},
	}
	for _, tt := range tests {
		if got := tt.entry.Status(); got != tt.want {
			t.Errorf("%s: Status() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRecentAndFailed(t *testing.T) {
	m, now := setupTestManager(t)

	a, _ := m.FindOrCreate("A", "1", "", "mpd")
	*now = now.Add(time.Minute)
	b, _ := m.FindOrCreate("B", "2", "", "mpd")
	*now = now.Add(time.Minute)
	c, _ := m.FindOrCreate("C", "3", "", "mpd")

	require.NoError(t, m.SetDuration(b, 240))
	require.NoError(t, m.MarkScrobbleFailed(b, "boom"))
	require.NoError(t, m.MarkScrobbled(c))

	recent, err := m.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, c, recent[0].ID)
	assert.Equal(t, b, recent[1].ID)
	assert.Equal(t, 240, recent[1].Duration)

	all, err := m.Recent(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, a, all[2].ID)

	failed, err := m.Failed()
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, b, failed[0].ID)
}

func mustEntry(t *testing.T, m *Manager, ref EntryRef) *LogEntry {
	t.Helper()
	e, err := m.Entry(ref)
	require.NoError(t, err)
	return e
}
