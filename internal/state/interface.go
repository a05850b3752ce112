// internal/state/interface.go
package state

// LogStore is the part of the store the track lifecycle engine writes to.
type LogStore interface {
	FindOrCreate(artist, title, album, source string) (EntryRef, error)
	SetDuration(ref EntryRef, seconds int) error
	MarkNowPlayingSent(ref EntryRef) error
	MarkNowPlayingFailed(ref EntryRef, message string) error
	MarkScrobbled(ref EntryRef) error
	MarkScrobbleFailed(ref EntryRef, message string) error
}

// AccountStore persists linked service credentials.
type AccountStore interface {
	GetAccount(service Service) (*Account, error)
	SaveAccount(service Service, username, secret string) error
	DeleteAccount(service Service) error
}

// Verify Manager implements the interfaces at compile time.
var (
	_ LogStore     = (*Manager)(nil)
	_ AccountStore = (*Manager)(nil)
	_ LogStore     = (*Mock)(nil)
)
