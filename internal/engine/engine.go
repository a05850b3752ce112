// Package engine turns player events into timed now-playing and scrobble
// submissions. It owns the single current listening session.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/llehouerou/scrobd/internal/artwork"
	"github.com/llehouerou/scrobd/internal/playback"
	"github.com/llehouerou/scrobd/internal/scrobble"
	"github.com/llehouerou/scrobd/internal/state"
)

var (
	// ErrIdle is returned by operations that need a current track.
	ErrIdle = errors.New("nothing is playing")
	// ErrNoBackends is returned when no backend is enabled and authenticated.
	ErrNoBackends = errors.New("no backend is enabled")
	// ErrClosed is returned by Run after Close.
	ErrClosed = errors.New("engine closed")
)

// Backends fans actions out to the tracking services.
// *scrobble.Manager implements it.
type Backends interface {
	NowPlaying(ctx context.Context, t scrobble.Track) scrobble.Outcome
	Scrobble(ctx context.Context, t scrobble.Track) scrobble.Outcome
	SetLoved(ctx context.Context, t scrobble.Track, loved bool, prev scrobble.Favorites) (scrobble.Favorites, scrobble.Outcome)
	Favorites(ctx context.Context, t scrobble.Track) scrobble.Favorites
}

// Artwork resolves and stores track artwork. *artwork.Cache implements it.
type Artwork interface {
	Resolve(ctx context.Context, artist, track, album string) *artwork.Image
	Store(artist, track, album string, data []byte) (*artwork.Image, error)
}

var (
	_ Backends = (*scrobble.Manager)(nil)
	_ Artwork  = (*artwork.Cache)(nil)
)

// Services are the collaborators of the engine. Log and Backends are
// required; Artwork may be nil.
type Services struct {
	Log      state.LogStore
	Backends Backends
	Artwork  Artwork
	Logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the clock used for session start times and elapsed
// time checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NowPlaying is a snapshot of the current session.
type NowPlaying struct {
	Key         playback.TrackKey  `json:"key"`
	Title       string             `json:"title"`
	Artist      string             `json:"artist"`
	Album       string             `json:"album,omitempty"`
	Source      string             `json:"source"`
	DurationSec int                `json:"duration_sec"`
	StartedAt   time.Time          `json:"started_at"`
	State       playback.State     `json:"state"`
	LogEntry    state.EntryRef     `json:"log_entry,omitempty"`
	Artwork     *artwork.Image     `json:"-"`
	Favorites   scrobble.Favorites `json:"favorites"`
}

// session is the engine-owned state of the track considered now playing.
type session struct {
	id          uint64
	key         playback.TrackKey
	event       playback.Event
	startedAt   time.Time
	durationSec int
	ref         state.EntryRef
	timer       *time.Timer
	scrobbled   bool
	snapshot    NowPlaying

	// npRecorded is closed once the now-playing outcome is written to ref.
	npRecorded chan struct{}
}

func (s *session) track() scrobble.Track {
	return scrobble.Track{
		Artist:      s.event.Artist,
		Title:       s.event.Title,
		Album:       s.event.Album,
		DurationSec: s.durationSec,
		StartedAt:   s.startedAt,
	}
}

// Engine is the track lifecycle state machine. Events are applied one at a
// time; network work runs in background goroutines and never blocks event
// handling.
type Engine struct {
	svc      Services
	settings Settings
	logger   *slog.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	session *session
	nextID  uint64
	closed  bool

	subsMu     sync.RWMutex
	subs       []*Subscription
	subsClosed bool
}

// New creates an engine.
func New(svc Services, settings Settings, opts ...Option) *Engine {
	if svc.Logger == nil {
		svc.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		svc:      svc,
		settings: settings,
		logger:   svc.Logger.With("component", "engine"),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Settings returns the settings the engine was created with.
func (e *Engine) Settings() Settings { return e.settings }

// Run applies events from src until it is exhausted or ctx is done.
func (e *Engine) Run(ctx context.Context, src playback.Source) error {
	events := src.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := e.Handle(ev); err != nil {
				return err
			}
		}
	}
}

// Handle applies one event. Events without a title or artist are ignored.
func (e *Engine) Handle(ev playback.Event) error {
	if !ev.Valid() {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	switch ev.State {
	case playback.StatePlaying:
		e.playing(ev)
	case playback.StatePaused:
		if e.fromSessionSource(ev) {
			e.paused()
		}
	case playback.StateStopped:
		if e.fromSessionSource(ev) {
			e.stopped()
		}
	default:
		e.logger.Debug("ignoring event", "state", ev.State, "source", ev.Source)
	}
	return nil
}

func (e *Engine) playing(ev playback.Event) {
	key := ev.Key()
	if s := e.session; s != nil && s.key == key {
		if s.snapshot.State != playback.StatePlaying {
			s.snapshot.State = playback.StatePlaying
			e.publish(ChangeState, s.snapshot)
		}
		return
	}

	if e.session != nil {
		e.logger.Debug("track changed without stop", "previous", e.session.key, "next", key)
		e.endSession()
	}
	e.startSession(ev)
}

// startSession creates the session for ev and dispatches its side work:
// now playing, artwork, favorites and the scrobble timer.
func (e *Engine) startSession(ev playback.Event) {
	e.nextID++
	s := &session{
		id:          e.nextID,
		key:         ev.Key(),
		event:       ev,
		startedAt:   e.now(),
		durationSec: ev.DurationSec(),
		npRecorded:  make(chan struct{}),
	}

	ref, err := e.svc.Log.FindOrCreate(ev.Artist, ev.Title, ev.Album, ev.Source)
	if err != nil {
		e.logger.Error("create log entry", "error", err)
	} else {
		s.ref = ref
		if err := e.svc.Log.SetDuration(ref, s.durationSec); err != nil {
			e.logger.Warn("set log entry duration", "error", err)
		}
	}

	s.snapshot = NowPlaying{
		Key:         s.key,
		Title:       ev.Title,
		Artist:      ev.Artist,
		Album:       ev.Album,
		Source:      ev.Source,
		DurationSec: s.durationSec,
		StartedAt:   s.startedAt,
		State:       playback.StatePlaying,
		LogEntry:    s.ref,
	}
	e.session = s
	e.logger.Info("now playing", "artist", ev.Artist, "title", ev.Title, "album", ev.Album,
		"source", ev.Source, "duration", s.durationSec)
	e.publish(ChangeTrack, s.snapshot)

	t, npRecorded := s.track(), s.npRecorded
	e.wg.Go(func() {
		defer close(npRecorded)
		out := e.svc.Backends.NowPlaying(e.ctx, t)
		e.record(ref, out, e.svc.Log.MarkNowPlayingSent, e.svc.Log.MarkNowPlayingFailed)
	})
	e.wg.Go(func() { e.fetchArtwork(s.id, ev) })
	e.wg.Go(func() {
		fav := e.svc.Backends.Favorites(e.ctx, t)
		e.updateSession(s.id, ChangeFavorites, func(np *NowPlaying) { np.Favorites = fav })
	})

	e.armTimer(s)
}

func (e *Engine) armTimer(s *session) {
	if s.durationSec <= timerMinDurationSec {
		return
	}
	threshold := Threshold(s.durationSec, e.settings.Percent())
	id, key := s.id, s.key
	s.timer = time.AfterFunc(time.Duration(threshold)*time.Second, func() {
		e.timerFired(id, key)
	})
	e.logger.Debug("scrobble timer armed", "key", key, "after", threshold)
}

func (e *Engine) timerFired(id uint64, key playback.TrackKey) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session
	if e.closed || s == nil || s.id != id || s.key != key {
		return
	}
	s.timer = nil
	if !s.scrobbled {
		e.scrobble(s)
	}
}

// fromSessionSource reports whether a pause or stop applies to the current
// session. With several players watched, one player pausing must not end
// another player's track. Events without a source always apply.
func (e *Engine) fromSessionSource(ev playback.Event) bool {
	s := e.session
	if s == nil || ev.Source == "" || s.event.Source == "" || ev.Source == s.event.Source {
		return true
	}
	e.logger.Debug("ignoring event from another player", "state", ev.State,
		"source", ev.Source, "session_source", s.event.Source)
	return false
}

func (e *Engine) paused() {
	s := e.session
	if s == nil {
		return
	}
	e.stopTimer(s)
	if s.snapshot.State != playback.StatePaused {
		s.snapshot.State = playback.StatePaused
		e.publish(ChangeState, s.snapshot)
	}
}

func (e *Engine) stopped() {
	s := e.session
	if s == nil {
		return
	}
	if !s.scrobbled && s.durationSec > 0 {
		elapsed := int(e.now().Sub(s.startedAt) / time.Second)
		if elapsed >= Threshold(s.durationSec, e.settings.Percent()) {
			e.scrobble(s)
		}
	}
	e.endSession()
	e.publish(ChangeIdle, NowPlaying{})
}

// endSession drops the current session without evaluating it.
func (e *Engine) endSession() {
	if e.session == nil {
		return
	}
	e.stopTimer(e.session)
	e.session = nil
}

func (e *Engine) stopTimer(s *session) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// scrobble marks s scrobbled and submits it in the background. The outcome
// is written after the session's now-playing outcome so writes to one log
// entry stay ordered.
func (e *Engine) scrobble(s *session) {
	s.scrobbled = true
	t, ref, npRecorded := s.track(), s.ref, s.npRecorded
	e.logger.Info("scrobbling", "artist", t.Artist, "title", t.Title)
	e.wg.Go(func() {
		out := e.svc.Backends.Scrobble(e.ctx, t)
		<-npRecorded
		e.record(ref, out, e.svc.Log.MarkScrobbled, e.svc.Log.MarkScrobbleFailed)
	})
}

// record writes a fan-out outcome to the log entry: one success marks the
// action done; otherwise all failures are recorded. Nothing is written
// when no backend was called.
func (e *Engine) record(ref state.EntryRef, out scrobble.Outcome, success func(state.EntryRef) error, failure func(state.EntryRef, string) error) {
	if ref == "" || !out.Attempted() {
		return
	}
	var err error
	if out.Succeeded() {
		err = success(ref)
	} else {
		err = failure(ref, out.Message())
	}
	if err != nil {
		e.logger.Error("update log entry", "ref", ref, "error", err)
	}
}

func (e *Engine) fetchArtwork(id uint64, ev playback.Event) {
	if e.svc.Artwork == nil {
		return
	}
	var img *artwork.Image
	if len(ev.Artwork) > 0 {
		stored, err := e.svc.Artwork.Store(ev.Artist, ev.Title, ev.Album, ev.Artwork)
		if err != nil {
			e.logger.Debug("player artwork unusable", "error", err)
		}
		img = stored
	}
	if img == nil {
		img = e.svc.Artwork.Resolve(e.ctx, ev.Artist, ev.Title, ev.Album)
	}
	if img == nil {
		return
	}
	e.updateSession(id, ChangeArtwork, func(np *NowPlaying) { np.Artwork = img })
}

// updateSession applies fn to the snapshot if session id is still current.
// Results for a replaced session are dropped.
func (e *Engine) updateSession(id uint64, change Change, fn func(*NowPlaying)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session
	if e.closed || s == nil || s.id != id {
		return false
	}
	fn(&s.snapshot)
	e.publish(change, s.snapshot)
	return true
}

// Current returns the snapshot of the current session.
func (e *Engine) Current() (NowPlaying, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return NowPlaying{}, false
	}
	return e.session.snapshot, true
}

// SetFavorite loves or unloves the current track on every active backend.
// A nil loved toggles the current state. The local state changes when any
// backend accepts the change.
func (e *Engine) SetFavorite(ctx context.Context, loved *bool) (scrobble.Favorites, error) {
	e.mu.Lock()
	s := e.session
	if s == nil {
		e.mu.Unlock()
		return scrobble.Favorites{}, ErrIdle
	}
	id, t, prev := s.id, s.track(), s.snapshot.Favorites.Clone()
	e.mu.Unlock()

	target := !prev.Loved
	if loved != nil {
		target = *loved
	}

	next, out := e.svc.Backends.SetLoved(ctx, t, target, prev)
	if !out.Attempted() {
		return prev, ErrNoBackends
	}
	e.updateSession(id, ChangeLoved, func(np *NowPlaying) { np.Favorites = next })
	if out.Failed() {
		return next, fmt.Errorf("set favorite: %s", out.Message())
	}
	return next, nil
}

// Subscribe returns a subscription to snapshot updates.
func (e *Engine) Subscribe() *Subscription {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	sub := newSubscription()
	if e.subsClosed {
		sub.close()
		return sub
	}
	e.subs = append(e.subs, sub)
	return sub
}

func (e *Engine) publish(change Change, np NowPlaying) {
	np.Favorites = np.Favorites.Clone()
	u := Update{Change: change, NowPlaying: np}
	e.subsMu.RLock()
	defer e.subsMu.RUnlock()
	for _, sub := range e.subs {
		sub.send(u)
	}
}

// Wait blocks until all background submissions and lookups finish.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// CloseGracePeriod is how long Close lets in-flight submissions finish
// before cancelling them.
const CloseGracePeriod = 5 * time.Second

// Close stops the scrobble timer, waits up to CloseGracePeriod for
// background work, cancels what is left and ends all subscriptions. Events
// handled after Close are rejected.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	if e.session != nil {
		e.stopTimer(e.session)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(CloseGracePeriod):
		e.logger.Warn("background work still running, cancelling", "after", CloseGracePeriod)
		e.cancel()
		<-done
	}
	e.cancel()

	e.subsMu.Lock()
	for _, sub := range e.subs {
		sub.close()
	}
	e.subs = nil
	e.subsClosed = true
	e.subsMu.Unlock()
	return nil
}
