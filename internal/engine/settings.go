package engine

// Scrobble percent bounds.
const (
	DefaultScrobblePercent = 50
	MinScrobblePercent     = 50
	MaxScrobblePercent     = 100
)

// Threshold bounds in seconds. Tracks no longer than timerMinDurationSec
// get no scrobble timer.
const (
	minThresholdSec     = 30
	maxThresholdSec     = 240
	timerMinDurationSec = 30
)

// Settings holds the engine tunables. It is passed by value and never read
// from global state.
type Settings struct {
	// ScrobblePercent is how much of a track must be heard before it is
	// scrobbled, clamped to [50, 100]. Zero selects the default.
	ScrobblePercent int
}

// Percent returns the effective scrobble percent.
func (s Settings) Percent() int {
	if s.ScrobblePercent == 0 {
		return DefaultScrobblePercent
	}
	return min(max(s.ScrobblePercent, MinScrobblePercent), MaxScrobblePercent)
}

// Threshold returns the listening time in seconds after which a track of
// the given duration is scrobbled: duration*percent/100 clamped to
// [30, 240].
func Threshold(durationSec, percent int) int {
	return min(max(durationSec*percent/100, minThresholdSec), maxThresholdSec)
}
