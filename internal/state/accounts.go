package state

import (
	"database/sql"
	"errors"
	"time"
)

// Service names a linked tracking service.
type Service string

const (
	ServiceLastfm       Service = "lastfm"
	ServiceListenBrainz Service = "listenbrainz"
)

// Account holds the credentials of a linked service: the Last.fm session
// key or the ListenBrainz user token.
type Account struct {
	Username string
	Secret   string
	LinkedAt time.Time
}

// GetAccount returns the stored account, or nil if the service is not linked.
func (m *Manager) GetAccount(service Service) (*Account, error) {
	var username, secret string
	var linkedAt int64

	err := m.db.QueryRow(`
		SELECT username, secret, linked_at FROM linked_accounts WHERE service = ?
	`, string(service)).Scan(&username, &secret, &linkedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // nil account means not linked, not an error
	}
	if err != nil {
		return nil, err
	}

	return &Account{
		Username: username,
		Secret:   secret,
		LinkedAt: time.Unix(linkedAt, 0),
	}, nil
}

// SaveAccount stores credentials after a successful link.
func (m *Manager) SaveAccount(service Service, username, secret string) error {
	_, err := m.db.Exec(`
		INSERT INTO linked_accounts (service, username, secret, linked_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(service) DO UPDATE SET
			username = excluded.username,
			secret = excluded.secret,
			linked_at = excluded.linked_at
	`, string(service), username, secret, m.now().Unix())
	return err
}

// DeleteAccount removes stored credentials (unlink).
func (m *Manager) DeleteAccount(service Service) error {
	_, err := m.db.Exec(`DELETE FROM linked_accounts WHERE service = ?`, string(service))
	return err
}
