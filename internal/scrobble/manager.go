package scrobble

import (
	"context"
	"log/slog"
	"sync"
)

// Manager issues actions to all active backends concurrently.
type Manager struct {
	backends []Backend
	logger   *slog.Logger
}

// NewManager creates a manager over the given backends.
func NewManager(logger *slog.Logger, backends ...Backend) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{backends: backends, logger: logger}
}

// Backends returns all registered backends.
func (m *Manager) Backends() []Backend {
	return m.backends
}

// Active returns the backends that are both enabled and authenticated.
func (m *Manager) Active() []Backend {
	var active []Backend
	for _, b := range m.backends {
		if b.Enabled() && b.Authenticated() {
			active = append(active, b)
		}
	}
	return active
}

// NowPlaying announces t to every active backend.
func (m *Manager) NowPlaying(ctx context.Context, t Track) Outcome {
	return m.fanOut(ctx, "now playing", func(ctx context.Context, b Backend) error {
		return b.NowPlaying(ctx, t)
	})
}

// Scrobble submits t to every active backend.
func (m *Manager) Scrobble(ctx context.Context, t Track) Outcome {
	return m.fanOut(ctx, "scrobble", func(ctx context.Context, b Backend) error {
		return b.Scrobble(ctx, t)
	})
}

// SetLoved loves or unloves t on every active backend. The returned
// favorites reflect the services that accepted the change; Loved is only
// updated when at least one did.
func (m *Manager) SetLoved(ctx context.Context, t Track, loved bool, prev Favorites) (Favorites, Outcome) {
	out := m.fanOut(ctx, "love", func(ctx context.Context, b Backend) error {
		return b.SetLoved(ctx, t, loved)
	})

	next := prev.Clone()
	if next.Services == nil {
		next.Services = make(map[string]bool)
	}
	for _, r := range out.Results {
		if r.Err == nil {
			next.Services[r.Backend] = loved
		}
	}
	if out.Succeeded() {
		next.Loved = loved
	}
	return next, out
}

// Favorites asks every active backend whether t is loved. Backends that
// fail are left out of the result.
func (m *Manager) Favorites(ctx context.Context, t Track) Favorites {
	active := m.Active()
	fav := Favorites{Services: make(map[string]bool, len(active))}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, b := range active {
		wg.Go(func() {
			loved, err := b.IsLoved(ctx, t)
			if err != nil {
				m.logger.Debug("favorite lookup failed", "backend", b.Name(), "error", err)
				return
			}
			mu.Lock()
			fav.Services[b.Name()] = loved
			mu.Unlock()
		})
	}
	wg.Wait()

	fav.Loved = fav.lovedAnywhere()
	return fav
}

func (m *Manager) fanOut(ctx context.Context, action string, call func(context.Context, Backend) error) Outcome {
	active := m.Active()
	results := make([]Result, len(active))

	var wg sync.WaitGroup
	for i, b := range active {
		wg.Go(func() {
			err := call(ctx, b)
			results[i] = Result{Backend: b.Name(), Err: err}
			if err != nil {
				m.logger.Warn(action+" failed", "backend", b.Name(), "error", err)
			}
		})
	}
	wg.Wait()

	return Outcome{Results: results}
}
