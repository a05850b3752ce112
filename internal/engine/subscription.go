package engine

const updateBufferSize = 16

// Change says what a snapshot update is about.
type Change int

const (
	ChangeTrack     Change = iota // a new track started
	ChangeState                   // paused or resumed
	ChangeArtwork                 // artwork resolved
	ChangeFavorites               // favorite state fetched
	ChangeLoved                   // favorite state changed by the user
	ChangeIdle                    // playback stopped
)

func (c Change) String() string {
	switch c {
	case ChangeTrack:
		return "track"
	case ChangeState:
		return "state"
	case ChangeArtwork:
		return "artwork"
	case ChangeFavorites:
		return "favorites"
	case ChangeLoved:
		return "loved"
	case ChangeIdle:
		return "idle"
	}
	return "unknown"
}

// Update is delivered to subscribers on every snapshot change. NowPlaying is
// the zero value when Change is ChangeIdle.
type Update struct {
	Change     Change
	NowPlaying NowPlaying
}

// Subscription receives snapshot updates. Updates are dropped when the
// buffer is full; Done is closed when the engine shuts down.
type Subscription struct {
	Updates <-chan Update
	Done    <-chan struct{}

	updates chan Update
	done    chan struct{}
}

func newSubscription() *Subscription {
	s := &Subscription{
		updates: make(chan Update, updateBufferSize),
		done:    make(chan struct{}),
	}
	s.Updates = s.updates
	s.Done = s.done
	return s
}

func (s *Subscription) close() {
	close(s.done)
}

// send delivers u without blocking.
func (s *Subscription) send(u Update) {
	select {
	case s.updates <- u:
	default:
		// Drop if buffer full
	}
}
