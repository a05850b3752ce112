package scrobble

import "maps"

// Favorites is the love state of one track across services.
type Favorites struct {
	// Loved is the merged local state shown to the user.
	Loved bool `json:"loved"`
	// Services holds the last known state per backend name.
	Services map[string]bool `json:"services,omitempty"`
}

// Clone returns a deep copy.
func (f Favorites) Clone() Favorites {
	return Favorites{Loved: f.Loved, Services: maps.Clone(f.Services)}
}

// lovedAnywhere reports whether any service has the track loved.
func (f Favorites) lovedAnywhere() bool {
	for _, v := range f.Services {
		if v {
			return true
		}
	}
	return false
}
