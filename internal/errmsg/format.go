// Package errmsg provides consistent error formatting for user-facing messages.
package errmsg

import "fmt"

// Op represents an operation that can fail.
type Op string

// Operation constants - grouped by domain.
const (
	// Startup
	OpConfigLoad  Op = "load configuration"
	OpStateOpen   Op = "open scrobble log"
	OpLoggerSetup Op = "set up logging"
	OpSourceStart Op = "start event source"
	OpAPIStart    Op = "start control API"

	// Accounts
	OpLastfmLink         Op = "link Last.fm account"
	OpLastfmUnlink       Op = "unlink Last.fm account"
	OpListenBrainzToken  Op = "save ListenBrainz token"
	OpListenBrainzUnlink Op = "unlink ListenBrainz account"

	// Log
	OpLogLoad Op = "load scrobble log"

	// Playback
	OpReplay         Op = "replay events"
	OpFavoriteToggle Op = "update favorites"

	// Artwork
	OpArtworkStats Op = "read artwork cache"
)

// Format creates a user-friendly error message.
func Format(op Op, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Failed to %s: %v", op, err)
}

// FormatWith creates an error message with additional context.
func FormatWith(op Op, context string, err error) string {
	if err == nil {
		return ""
	}
	if context == "" {
		return Format(op, err)
	}
	return fmt.Sprintf("Failed to %s '%s': %v", op, context, err)
}
