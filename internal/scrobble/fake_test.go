package scrobble

import (
	"context"
	"sync"
)

type fakeBackend struct {
	name          string
	enabled       bool
	authenticated bool
	err           error
	loved         bool
	lovedErr      error

	mu    sync.Mutex
	calls []string
}

func newFake(name string, err error) *fakeBackend {
	return &fakeBackend{name: name, enabled: true, authenticated: true, err: err}
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) Name() string        { return f.name }
func (f *fakeBackend) Enabled() bool       { return f.enabled }
func (f *fakeBackend) Authenticated() bool { return f.authenticated }

func (f *fakeBackend) NowPlaying(context.Context, Track) error {
	f.record("nowplaying")
	return f.err
}

func (f *fakeBackend) Scrobble(context.Context, Track) error {
	f.record("scrobble")
	return f.err
}

func (f *fakeBackend) SetLoved(_ context.Context, _ Track, loved bool) error {
	if loved {
		f.record("love")
	} else {
		f.record("unlove")
	}
	return f.err
}

func (f *fakeBackend) IsLoved(context.Context, Track) (bool, error) {
	f.record("isloved")
	return f.loved, f.lovedErr
}
