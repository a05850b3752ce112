package state

import (
	"database/sql"
)

const currentSchemaVersion = 1

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS log_entries (
			id TEXT PRIMARY KEY,
			date INTEGER NOT NULL,
			scrobbled_at INTEGER,
			title TEXT NOT NULL,
			artist TEXT NOT NULL,
			album TEXT,
			source TEXT NOT NULL,
			duration INTEGER NOT NULL DEFAULT 0,
			title_key TEXT NOT NULL,
			artist_key TEXT NOT NULL,
			now_playing_sent INTEGER NOT NULL DEFAULT 0,
			now_playing_failed INTEGER NOT NULL DEFAULT 0,
			scrobbled INTEGER NOT NULL DEFAULT 0,
			scrobble_failed INTEGER NOT NULL DEFAULT 0,
			error_message TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_log_entries_date ON log_entries(date DESC);
		CREATE INDEX IF NOT EXISTS idx_log_entries_lookup ON log_entries(artist_key, title_key, scrobbled);

		CREATE TABLE IF NOT EXISTS linked_accounts (
			service TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			secret TEXT NOT NULL,
			linked_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		INSERT OR IGNORE INTO schema_version (version) VALUES (?)
	`, currentSchemaVersion)
	return err
}
