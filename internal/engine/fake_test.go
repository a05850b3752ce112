package engine

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llehouerou/scrobd/internal/artwork"
	"github.com/llehouerou/scrobd/internal/scrobble"
	"github.com/llehouerou/scrobd/internal/state"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBackend is a scrobble.Backend recording every submission.
type fakeBackend struct {
	name string
	err  error

	mu         sync.Mutex
	nowPlaying []scrobble.Track
	scrobbles  []scrobble.Track
	loves      []bool
	loved      bool
}

func newBackend(name string, err error) *fakeBackend {
	return &fakeBackend{name: name, err: err}
}

func (f *fakeBackend) Name() string        { return f.name }
func (f *fakeBackend) Enabled() bool       { return true }
func (f *fakeBackend) Authenticated() bool { return true }

func (f *fakeBackend) NowPlaying(_ context.Context, t scrobble.Track) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nowPlaying = append(f.nowPlaying, t)
	return f.err
}

func (f *fakeBackend) Scrobble(_ context.Context, t scrobble.Track) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrobbles = append(f.scrobbles, t)
	return f.err
}

func (f *fakeBackend) SetLoved(_ context.Context, _ scrobble.Track, loved bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loves = append(f.loves, loved)
	if f.err == nil {
		f.loved = loved
	}
	return f.err
}

func (f *fakeBackend) IsLoved(context.Context, scrobble.Track) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loved, f.err
}

func (f *fakeBackend) NowPlayingCalls() []scrobble.Track {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scrobble.Track(nil), f.nowPlaying...)
}

func (f *fakeBackend) Scrobbles() []scrobble.Track {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scrobble.Track(nil), f.scrobbles...)
}

// fakeArtwork resolves every track to img, optionally waiting on a gate
// per title first.
type fakeArtwork struct {
	img      *artwork.Image
	gates    map[string]chan struct{}
	resolves atomic.Int32
	stores   atomic.Int32
}

func (f *fakeArtwork) Resolve(ctx context.Context, _, track, _ string) *artwork.Image {
	f.resolves.Add(1)
	if gate, ok := f.gates[track]; ok {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil
		}
	}
	return f.img
}

func (f *fakeArtwork) Store(_, _, _ string, data []byte) (*artwork.Image, error) {
	f.stores.Add(1)
	return artwork.Decode(data)
}

func testImage(t *testing.T) (*artwork.Image, []byte) {
	t.Helper()
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	src.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))
	img, err := artwork.Decode(buf.Bytes())
	require.NoError(t, err)
	return img, buf.Bytes()
}

// slowNowPlaying holds now-playing calls until gate is closed or the
// context is cancelled.
type slowNowPlaying struct {
	*fakeBackend
	gate  chan struct{}
	npErr error
}

func (s *slowNowPlaying) NowPlaying(ctx context.Context, t scrobble.Track) error {
	select {
	case <-s.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := s.fakeBackend.NowPlaying(ctx, t); err != nil {
		return err
	}
	return s.npErr
}

// recordingLog remembers the order of log entry mutations.
type recordingLog struct {
	*state.Mock

	mu    sync.Mutex
	calls []string
}

func newRecordingLog() *recordingLog {
	return &recordingLog{Mock: state.NewMock()}
}

func (l *recordingLog) note(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *recordingLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *recordingLog) MarkNowPlayingSent(ref state.EntryRef) error {
	l.note("MarkNowPlayingSent")
	return l.Mock.MarkNowPlayingSent(ref)
}

func (l *recordingLog) MarkNowPlayingFailed(ref state.EntryRef, message string) error {
	l.note("MarkNowPlayingFailed")
	return l.Mock.MarkNowPlayingFailed(ref, message)
}

func (l *recordingLog) MarkScrobbled(ref state.EntryRef) error {
	l.note("MarkScrobbled")
	return l.Mock.MarkScrobbled(ref)
}

func (l *recordingLog) MarkScrobbleFailed(ref state.EntryRef, message string) error {
	l.note("MarkScrobbleFailed")
	return l.Mock.MarkScrobbleFailed(ref, message)
}
