package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/llehouerou/scrobd/internal/artwork"
	"github.com/llehouerou/scrobd/internal/engine"
	"github.com/llehouerou/scrobd/internal/playback"
)

// IconExporter writes artwork to disk for use as a notification icon.
type IconExporter interface {
	Export(img *artwork.Image) (string, error)
}

// Watcher turns now-playing updates into desktop notifications. The track
// notification is replaced in place as artwork arrives and tracks change.
type Watcher struct {
	notifier Notifier
	icons    IconExporter
	timeout  int32
	logger   *slog.Logger

	trackID uint32
	key     playback.TrackKey
	hasIcon bool
}

// NewWatcher creates a Watcher. icons may be nil, in which case
// notifications carry no artwork.
func NewWatcher(n Notifier, icons IconExporter, timeout time.Duration, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		notifier: n,
		icons:    icons,
		timeout:  int32(timeout.Milliseconds()), //nolint:gosec // config-bounded
		logger:   logger,
	}
}

// Run consumes updates until ctx is done or the subscription ends.
func (w *Watcher) Run(ctx context.Context, sub *engine.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done:
			return
		case u := <-sub.Updates:
			w.Handle(u)
		}
	}
}

// Handle reacts to a single update.
func (w *Watcher) Handle(u engine.Update) {
	np := u.NowPlaying
	switch u.Change {
	case engine.ChangeTrack:
		w.key = np.Key
		w.hasIcon = false
		w.showTrack(np)
	case engine.ChangeArtwork:
		if np.Key == w.key && !w.hasIcon {
			w.showTrack(np)
		}
	case engine.ChangeLoved:
		msg := "Unloved"
		if np.Favorites.Loved {
			msg = "Loved"
		}
		w.send(Notification{
			Title:    msg,
			Body:     np.Artist + " - " + np.Title,
			Timeout:  w.timeout,
			Urgency:  UrgencyNormal,
			Category: CategoryLoved,
		})
	case engine.ChangeIdle:
		w.key = ""
		w.dismissTrack()
	case engine.ChangeState, engine.ChangeFavorites:
	}
}

func (w *Watcher) showTrack(np engine.NowPlaying) {
	n := Notification{
		Title:      np.Title,
		Body:       np.Artist,
		Timeout:    w.timeout,
		ReplacesID: w.trackID,
		Urgency:    UrgencyLow,
		Category:   CategoryTrack,
		Transient:  true,
	}
	if np.Album != "" {
		n.Body += " - " + np.Album
	}
	if np.Artwork != nil && w.icons != nil {
		path, err := w.icons.Export(np.Artwork)
		if err != nil {
			w.logger.Debug("export notification icon failed", "error", err)
		} else {
			n.Icon = path
			w.hasIcon = true
		}
	}

	if id := w.send(n); id != 0 {
		w.trackID = id
	}
}

// dismissTrack closes the now-playing notification once playback stops.
func (w *Watcher) dismissTrack() {
	if w.trackID == 0 {
		return
	}
	if err := w.notifier.Close(w.trackID); err != nil {
		w.logger.Debug("close notification failed", "error", err)
	}
	w.trackID = 0
}

func (w *Watcher) send(n Notification) uint32 {
	id, err := w.notifier.Notify(n)
	if err != nil {
		w.logger.Debug("notification failed", "error", err)
		return 0
	}
	return id
}
