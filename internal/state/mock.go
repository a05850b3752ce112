// internal/state/mock.go
package state

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Mock is an in-memory LogStore for tests. It follows the same reuse and
// flag rules as Manager.
type Mock struct {
	mu      sync.Mutex
	entries []*LogEntry
	now     func() time.Time
}

// NewMock creates an empty in-memory log.
func NewMock() *Mock {
	return &Mock{now: time.Now}
}

// SetClock replaces the time source.
func (m *Mock) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Mock) FindOrCreate(artist, title, album, source string) (EntryRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if strings.EqualFold(e.Artist, artist) && strings.EqualFold(e.Title, title) &&
			!e.Scrobbled && e.Date.After(now.Add(-reuseWindow)) {
			return e.ID, nil
		}
	}

	e := &LogEntry{
		ID:     EntryRef(fmt.Sprintf("entry-%d", len(m.entries)+1)),
		Date:   now,
		Title:  title,
		Artist: artist,
		Album:  album,
		Source: source,
	}
	m.entries = append(m.entries, e)
	return e.ID, nil
}

func (m *Mock) SetDuration(ref EntryRef, seconds int) error {
	return m.with(ref, func(e *LogEntry) { e.Duration = seconds })
}

func (m *Mock) MarkNowPlayingSent(ref EntryRef) error {
	return m.with(ref, func(e *LogEntry) {
		e.NowPlayingSent, e.NowPlayingFailed, e.ErrorMessage = true, false, ""
	})
}

func (m *Mock) MarkNowPlayingFailed(ref EntryRef, message string) error {
	return m.with(ref, func(e *LogEntry) {
		e.NowPlayingSent, e.NowPlayingFailed, e.ErrorMessage = false, true, message
	})
}

func (m *Mock) MarkScrobbled(ref EntryRef) error {
	return m.with(ref, func(e *LogEntry) {
		t := m.now()
		e.Scrobbled, e.ScrobbleFailed, e.ErrorMessage, e.ScrobbledAt = true, false, "", &t
	})
}

func (m *Mock) MarkScrobbleFailed(ref EntryRef, message string) error {
	return m.with(ref, func(e *LogEntry) {
		e.Scrobbled, e.ScrobbleFailed, e.ErrorMessage = false, true, message
	})
}

// Entries returns a copy of all entries in creation order.
func (m *Mock) Entries() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LogEntry, len(m.entries))
	for i, e := range m.entries {
		out[i] = *e
	}
	return out
}

// Entry returns a copy of one entry.
func (m *Mock) Entry(ref EntryRef) (LogEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == ref {
			return *e, true
		}
	}
	return LogEntry{}, false
}

func (m *Mock) with(ref EntryRef, fn func(*LogEntry)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == ref {
			fn(e)
			return nil
		}
	}
	return ErrEntryNotFound
}
