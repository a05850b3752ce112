package state

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/llehouerou/scrobd/internal/db"
)

// reuseWindow is how long an unscrobbled entry for the same track is reused
// instead of creating a new one.
const reuseWindow = 10 * time.Minute

// DefaultRecentLimit is the number of entries Recent returns for limit <= 0.
const DefaultRecentLimit = 200

// ErrEntryNotFound is returned when a reference does not match any entry.
var ErrEntryNotFound = errors.New("log entry not found")

// EntryRef identifies a log entry.
type EntryRef string

// Status is the derived state of a log entry.
type Status string

const (
	StatusPending    Status = "pending"
	StatusNowPlaying Status = "now_playing"
	StatusScrobbled  Status = "scrobbled"
	StatusFailed     Status = "failed"
)

// LogEntry is one listen as recorded in the log.
type LogEntry struct {
	ID          EntryRef
	Date        time.Time
	ScrobbledAt *time.Time
	Title       string
	Artist      string
	Album       string
	Source      string
	Duration    int

	NowPlayingSent   bool
	NowPlayingFailed bool
	Scrobbled        bool
	ScrobbleFailed   bool
	ErrorMessage     string
}

// Status derives the entry status: Failed > Scrobbled > NowPlaying > Pending.
func (e LogEntry) Status() Status {
	switch {
	case e.ScrobbleFailed || e.NowPlayingFailed:
		return StatusFailed
	case e.Scrobbled:
		return StatusScrobbled
	case e.NowPlayingSent:
		return StatusNowPlaying
	default:
		return StatusPending
	}
}

// FindOrCreate returns the newest unscrobbled entry for artist and title
// (case-insensitive) created within the last ten minutes, or a new entry.
func (m *Manager) FindOrCreate(artist, title, album, source string) (EntryRef, error) {
	now := m.now()
	artistKey := strings.ToLower(artist)
	titleKey := strings.ToLower(title)

	var ref EntryRef
	err := db.WithTx(m.db, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRow(`
			SELECT id FROM log_entries
			WHERE artist_key = ? AND title_key = ? AND scrobbled = 0 AND date > ?
			ORDER BY date DESC
			LIMIT 1
		`, artistKey, titleKey, now.Add(-reuseWindow).UnixMilli()).Scan(&id)
		if err == nil {
			ref = EntryRef(id)
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		id = uuid.NewString()
		_, err = tx.Exec(`
			INSERT INTO log_entries (id, date, title, artist, album, source, title_key, artist_key)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, id, now.UnixMilli(), title, artist, db.NullString(album), source, titleKey, artistKey)
		if err != nil {
			return err
		}
		ref = EntryRef(id)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("find or create log entry: %w", err)
	}
	return ref, nil
}

// SetDuration records the track length in seconds.
func (m *Manager) SetDuration(ref EntryRef, seconds int) error {
	return m.update(ref, `UPDATE log_entries SET duration = ? WHERE id = ?`, seconds)
}

// MarkNowPlayingSent records a successful now-playing announcement.
// It clears any earlier now-playing failure.
func (m *Manager) MarkNowPlayingSent(ref EntryRef) error {
	return m.update(ref, `
		UPDATE log_entries
		SET now_playing_sent = 1, now_playing_failed = 0, error_message = NULL
		WHERE id = ?
	`)
}

// MarkNowPlayingFailed records a failed now-playing announcement.
func (m *Manager) MarkNowPlayingFailed(ref EntryRef, message string) error {
	return m.update(ref, `
		UPDATE log_entries
		SET now_playing_sent = 0, now_playing_failed = 1, error_message = ?
		WHERE id = ?
	`, db.NullString(message))
}

// MarkScrobbled records a successful scrobble. It clears any earlier
// scrobble failure.
func (m *Manager) MarkScrobbled(ref EntryRef) error {
	return m.update(ref, `
		UPDATE log_entries
		SET scrobbled = 1, scrobble_failed = 0, scrobbled_at = ?, error_message = NULL
		WHERE id = ?
	`, m.now().UnixMilli())
}

// MarkScrobbleFailed records a failed scrobble.
func (m *Manager) MarkScrobbleFailed(ref EntryRef, message string) error {
	return m.update(ref, `
		UPDATE log_entries
		SET scrobbled = 0, scrobble_failed = 1, error_message = ?
		WHERE id = ?
	`, db.NullString(message))
}

// Entry returns a single log entry.
func (m *Manager) Entry(ref EntryRef) (*LogEntry, error) {
	rows, err := m.db.Query(selectEntries+` WHERE id = ?`, string(ref))
	if err != nil {
		return nil, err
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrEntryNotFound
	}
	return &entries[0], nil
}

// Recent returns the newest entries first.
func (m *Manager) Recent(limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := m.db.Query(selectEntries+` ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// Failed returns every entry whose scrobble failed, newest first.
func (m *Manager) Failed() ([]LogEntry, error) {
	rows, err := m.db.Query(selectEntries + ` WHERE scrobble_failed = 1 ORDER BY date DESC`)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (m *Manager) update(ref EntryRef, query string, args ...any) error {
	args = append(args, string(ref))
	res, err := m.db.Exec(query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

const selectEntries = `
	SELECT id, date, scrobbled_at, title, artist, album, source, duration,
		now_playing_sent, now_playing_failed, scrobbled, scrobble_failed, error_message
	FROM log_entries`

func scanEntries(rows *sql.Rows) ([]LogEntry, error) {
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		var id string
		var date int64
		var scrobbledAt sql.NullInt64
		var album, errMsg sql.NullString

		err := rows.Scan(
			&id, &date, &scrobbledAt, &e.Title, &e.Artist, &album, &e.Source, &e.Duration,
			&e.NowPlayingSent, &e.NowPlayingFailed, &e.Scrobbled, &e.ScrobbleFailed, &errMsg,
		)
		if err != nil {
			return nil, err
		}

		e.ID = EntryRef(id)
		e.Date = time.UnixMilli(date)
		e.ScrobbledAt = db.NullUnixMilli(scrobbledAt)
		e.Album = db.NullStringValue(album)
		e.ErrorMessage = db.NullStringValue(errMsg)

		entries = append(entries, e)
	}
	return entries, rows.Err()
}
