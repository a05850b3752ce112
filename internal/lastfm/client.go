// Package lastfm is the Last.fm scrobbling backend.
package lastfm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shkh/lastfm-go/lastfm"

	"github.com/llehouerou/scrobd/internal/retry"
	"github.com/llehouerou/scrobd/internal/scrobble"
)

// Name is how the service appears in log messages.
const Name = "Last.fm"

// Last.fm API error codes.
const (
	codeAuthFailed         = 4
	codeInvalidParameters  = 6
	codeOperationFailed    = 8
	codeInvalidSession     = 9
	codeInvalidAPIKey      = 10
	codeServiceOffline     = 11
	codeServiceUnavailable = 13
	codeUnauthorizedToken  = 14
	codeTemporaryError     = 16
	codeSuspendedAPIKey    = 26
	codeRateLimitExceeded  = 29
)

// trackAPI is the subset of the Last.fm API used for submissions.
type trackAPI interface {
	UpdateNowPlaying(p lastfm.P) error
	Scrobble(p lastfm.P) error
	Love(p lastfm.P) error
	UnLove(p lastfm.P) error
	UserLoved(p lastfm.P) (bool, error)
}

// Client wraps the Last.fm API and implements scrobble.Backend.
type Client struct {
	api       *lastfm.Api
	tracks    trackAPI
	apiKey    string
	apiSecret string
	enabled   bool
	logger    *slog.Logger

	mu         sync.RWMutex
	sessionKey string
	username   string
}

var _ scrobble.Backend = (*Client)(nil)

// New creates a new Last.fm client with the given API credentials.
func New(apiKey, apiSecret string, enabled bool, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	api := lastfm.New(apiKey, apiSecret)
	return &Client{
		api:       api,
		tracks:    libAPI{api: api},
		apiKey:    apiKey,
		apiSecret: apiSecret,
		enabled:   enabled,
		logger:    logger.With("component", "lastfm"),
	}
}

// SetSession sets the authenticated session.
func (c *Client) SetSession(username, sessionKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = username
	c.sessionKey = sessionKey
	c.api.SetSession(sessionKey)
}

// SessionKey returns the current session key.
func (c *Client) SessionKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionKey
}

// Username returns the linked account name.
func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// Name implements scrobble.Backend.
func (c *Client) Name() string { return Name }

// Enabled implements scrobble.Backend.
func (c *Client) Enabled() bool {
	return c.enabled && c.apiKey != "" && c.apiSecret != ""
}

// Authenticated implements scrobble.Backend.
func (c *Client) Authenticated() bool {
	return c.SessionKey() != ""
}

// NowPlaying sends a "now playing" notification to Last.fm.
func (c *Client) NowPlaying(ctx context.Context, t scrobble.Track) error {
	if !c.Authenticated() {
		return scrobble.ErrNotAuthenticated
	}
	params := trackParams(t)
	if err := c.do(ctx, func() error { return c.tracks.UpdateNowPlaying(params) }); err != nil {
		return fmt.Errorf("update now playing: %w", err)
	}
	return nil
}

// Scrobble submits a track play to Last.fm.
func (c *Client) Scrobble(ctx context.Context, t scrobble.Track) error {
	if !c.Authenticated() {
		return scrobble.ErrNotAuthenticated
	}
	params := trackParams(t)
	params["timestamp"] = t.StartedAt.Unix()
	if err := c.do(ctx, func() error { return c.tracks.Scrobble(params) }); err != nil {
		return fmt.Errorf("scrobble: %w", err)
	}
	return nil
}

// SetLoved loves or unloves a track.
func (c *Client) SetLoved(ctx context.Context, t scrobble.Track, loved bool) error {
	if !c.Authenticated() {
		return scrobble.ErrNotAuthenticated
	}
	params := lastfm.P{"artist": t.Artist, "track": t.Title}
	call := c.tracks.UnLove
	op := "unlove"
	if loved {
		call = c.tracks.Love
		op = "love"
	}
	if err := c.do(ctx, func() error { return call(params) }); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// IsLoved reports whether the linked user has loved the track.
// Unknown tracks are reported as not loved.
func (c *Client) IsLoved(ctx context.Context, t scrobble.Track) (bool, error) {
	if !c.Authenticated() {
		return false, scrobble.ErrNotAuthenticated
	}
	params := lastfm.P{"artist": t.Artist, "track": t.Title, "autocorrect": 1}
	if u := c.Username(); u != "" {
		params["username"] = u
	}

	var loved bool
	err := c.do(ctx, func() error {
		var err error
		loved, err = c.tracks.UserLoved(params)
		return err
	})
	if errors.Is(err, scrobble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get track info: %w", err)
	}
	return loved, nil
}

// do runs a library call with transient retries. The library has no
// context support, so an expired ctx abandons the call instead of
// cancelling it.
func (c *Client) do(ctx context.Context, fn func() error) error {
	return retry.Do(ctx, retry.Transient, scrobble.IsTransient, func(ctx context.Context) error {
		errc := make(chan error, 1)
		go func() { errc <- mapError(fn()) }()
		select {
		case err := <-errc:
			if scrobble.IsTransient(err) {
				c.logger.Debug("transient failure, retrying", "error", err)
			}
			return err
		case <-ctx.Done():
			return scrobble.Classify(ctx.Err())
		}
	})
}

func trackParams(t scrobble.Track) lastfm.P {
	params := lastfm.P{
		"artist": t.Artist,
		"track":  t.Title,
	}
	if t.Album != "" {
		params["album"] = t.Album
	}
	if t.DurationSec > 0 {
		params["duration"] = t.DurationSec
	}
	return params
}

// mapError converts library errors onto the backend taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var lfErr *lastfm.LastfmError
	if !errors.As(err, &lfErr) {
		return scrobble.Classify(err)
	}
	switch lfErr.Code {
	case codeInvalidSession, codeAuthFailed, codeUnauthorizedToken, codeInvalidAPIKey, codeSuspendedAPIKey:
		return fmt.Errorf("%w: %s", scrobble.ErrInvalidToken, lfErr.Message)
	case codeRateLimitExceeded:
		return scrobble.ErrRateLimited
	case codeServiceOffline, codeTemporaryError, codeOperationFailed, codeServiceUnavailable:
		return fmt.Errorf("%w: %s", scrobble.ErrTransient, lfErr.Message)
	case codeInvalidParameters:
		return fmt.Errorf("%w: %s", scrobble.ErrNotFound, lfErr.Message)
	default:
		return &scrobble.APIError{Code: lfErr.Code, Message: lfErr.Message}
	}
}

// libAPI adapts *lastfm.Api to trackAPI.
type libAPI struct {
	api *lastfm.Api
}

func (l libAPI) UpdateNowPlaying(p lastfm.P) error {
	_, err := l.api.Track.UpdateNowPlaying(p)
	return err
}

func (l libAPI) Scrobble(p lastfm.P) error {
	_, err := l.api.Track.Scrobble(p)
	return err
}

func (l libAPI) Love(p lastfm.P) error {
	return l.api.Track.Love(p)
}

func (l libAPI) UnLove(p lastfm.P) error {
	return l.api.Track.UnLove(p)
}

func (l libAPI) UserLoved(p lastfm.P) (bool, error) {
	info, err := l.api.Track.GetInfo(p)
	if err != nil {
		return false, err
	}
	return info.UserLoved == "1", nil
}
