// Package notify shows now-playing and loved-track desktop notifications
// over D-Bus.
package notify

const (
	appName = "scrobd"
	appID   = "scrobd"
)

// Urgency is the freedesktop notification urgency level.
type Urgency byte

const (
	UrgencyLow    Urgency = 0
	UrgencyNormal Urgency = 1
)

// Category hints let notification daemons group or style scrobd's
// notifications.
const (
	CategoryTrack = "x-scrobd.track"
	CategoryLoved = "x-scrobd.loved"
)

// Notification contains data for a desktop notification.
type Notification struct {
	Title      string // Summary text (required)
	Body       string
	Icon       string // Path to image file or icon name (optional)
	Timeout    int32  // ms, -1 = server default, 0 = never expire
	ReplacesID uint32 // 0 = new notification, >0 = replace existing
	Urgency    Urgency
	Category   string
	// Transient notifications are not kept in the daemon's history.
	Transient bool
}

// Notifier sends desktop notifications.
type Notifier interface {
	// Notify sends a notification and returns its ID.
	// Returns 0 and nil error if notifications are unavailable.
	Notify(n Notification) (uint32, error)
	// Close dismisses a notification by ID.
	Close(id uint32) error
}

// noopNotifier is used when no notification service is reachable.
type noopNotifier struct{}

func (noopNotifier) Notify(Notification) (uint32, error) { return 0, nil }
func (noopNotifier) Close(uint32) error                  { return nil }
