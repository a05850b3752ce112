// Package listenbrainz is the ListenBrainz scrobbling backend.
package listenbrainz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/llehouerou/scrobd/internal/retry"
	"github.com/llehouerou/scrobd/internal/scrobble"
)

// Name is how the service appears in log messages.
const Name = "ListenBrainz"

const (
	// DefaultBaseURL is the public ListenBrainz API.
	DefaultBaseURL = "https://api.listenbrainz.org"
	userAgent      = "scrobd/0.1 (https://github.com/llehouerou/scrobd)"

	listenTypeSingle     = "single"
	listenTypePlayingNow = "playing_now"

	scoreLove = 1
	scoreNone = 0
)

// ErrRecordingNotFound is returned by SetLoved when the track has no
// MusicBrainz recording to attach feedback to.
var ErrRecordingNotFound = fmt.Errorf("recording %w", scrobble.ErrNotFound)

// RecordingLookup resolves a track to its MusicBrainz recording ID.
// An empty ID with a nil error means no match.
type RecordingLookup interface {
	LookupRecordingMBID(ctx context.Context, artist, track string) (string, error)
}

// Client talks to the ListenBrainz API and implements scrobble.Backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	enabled    bool
	recordings RecordingLookup
	logger     *slog.Logger

	mu       sync.RWMutex
	token    string
	username string
}

var _ scrobble.Backend = (*Client)(nil)

// New creates a client. An empty baseURL selects the public API.
func New(baseURL string, enabled bool, recordings RecordingLookup, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		enabled:    enabled,
		recordings: recordings,
		logger:     logger.With("component", "listenbrainz"),
	}
}

// SetToken sets the user token and the account it belongs to.
func (c *Client) SetToken(username, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = username
	c.token = token
}

func (c *Client) credentials() (username, token string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username, c.token
}

// Username returns the linked account name.
func (c *Client) Username() string {
	u, _ := c.credentials()
	return u
}

// Name implements scrobble.Backend.
func (c *Client) Name() string { return Name }

// Enabled implements scrobble.Backend.
func (c *Client) Enabled() bool { return c.enabled }

// Authenticated implements scrobble.Backend.
func (c *Client) Authenticated() bool {
	_, token := c.credentials()
	return token != ""
}

// ValidateToken checks a token and returns the user it belongs to.
func (c *Client) ValidateToken(ctx context.Context, token string) (string, error) {
	var result struct {
		Valid    bool   `json:"valid"`
		UserName string `json:"user_name"`
	}
	err := c.request(ctx, http.MethodGet, "/1/validate-token", token, nil, &result)
	if err != nil {
		return "", fmt.Errorf("validate token: %w", err)
	}
	if !result.Valid || result.UserName == "" {
		return "", scrobble.ErrInvalidToken
	}
	return result.UserName, nil
}

type trackMetadata struct {
	ArtistName     string          `json:"artist_name"`
	TrackName      string          `json:"track_name"`
	ReleaseName    string          `json:"release_name,omitempty"`
	AdditionalInfo *additionalInfo `json:"additional_info,omitempty"`
}

type additionalInfo struct {
	DurationMs int `json:"duration_ms"`
}

type listen struct {
	ListenedAt    int64         `json:"listened_at,omitempty"`
	TrackMetadata trackMetadata `json:"track_metadata"`
}

type submission struct {
	ListenType string   `json:"listen_type"`
	Payload    []listen `json:"payload"`
}

func newSubmission(listenType string, t scrobble.Track) submission {
	l := listen{
		TrackMetadata: trackMetadata{
			ArtistName:  t.Artist,
			TrackName:   t.Title,
			ReleaseName: t.Album,
		},
	}
	if t.DurationSec > 0 {
		l.TrackMetadata.AdditionalInfo = &additionalInfo{DurationMs: t.DurationSec * 1000}
	}
	if listenType == listenTypeSingle {
		l.ListenedAt = t.StartedAt.Unix()
	}
	return submission{ListenType: listenType, Payload: []listen{l}}
}

// NowPlaying implements scrobble.Backend.
func (c *Client) NowPlaying(ctx context.Context, t scrobble.Track) error {
	return c.submit(ctx, listenTypePlayingNow, t)
}

// Scrobble implements scrobble.Backend.
func (c *Client) Scrobble(ctx context.Context, t scrobble.Track) error {
	return c.submit(ctx, listenTypeSingle, t)
}

func (c *Client) submit(ctx context.Context, listenType string, t scrobble.Track) error {
	_, token := c.credentials()
	if token == "" {
		return scrobble.ErrNotAuthenticated
	}
	if err := c.request(ctx, http.MethodPost, "/1/submit-listens", token, newSubmission(listenType, t), nil); err != nil {
		return fmt.Errorf("submit %s: %w", listenType, err)
	}
	return nil
}

// SetLoved records love (score 1) or clears feedback (score 0) for the
// track's recording.
func (c *Client) SetLoved(ctx context.Context, t scrobble.Track, loved bool) error {
	_, token := c.credentials()
	if token == "" {
		return scrobble.ErrNotAuthenticated
	}
	mbid, err := c.recordingMBID(ctx, t)
	if err != nil {
		return err
	}

	body := struct {
		RecordingMBID string `json:"recording_mbid"`
		Score         int    `json:"score"`
	}{RecordingMBID: mbid, Score: scoreNone}
	if loved {
		body.Score = scoreLove
	}
	if err := c.request(ctx, http.MethodPost, "/1/feedback/recording-feedback", token, body, nil); err != nil {
		return fmt.Errorf("submit feedback: %w", err)
	}
	return nil
}

// IsLoved reports whether the user's feedback for the track is a love.
// Tracks without a recording are reported as not loved.
func (c *Client) IsLoved(ctx context.Context, t scrobble.Track) (bool, error) {
	username, token := c.credentials()
	if token == "" || username == "" {
		return false, scrobble.ErrNotAuthenticated
	}
	mbid, err := c.recordingMBID(ctx, t)
	if errors.Is(err, scrobble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var result struct {
		Feedback []struct {
			Score int `json:"score"`
		} `json:"feedback"`
	}
	path := fmt.Sprintf("/1/feedback/user/%s/get-feedback-for-recording?recording_mbid=%s",
		url.PathEscape(username), url.QueryEscape(mbid))
	if err := c.request(ctx, http.MethodGet, path, "", nil, &result); err != nil {
		return false, fmt.Errorf("get feedback: %w", err)
	}
	return len(result.Feedback) > 0 && result.Feedback[0].Score == scoreLove, nil
}

func (c *Client) recordingMBID(ctx context.Context, t scrobble.Track) (string, error) {
	if c.recordings == nil {
		return "", ErrRecordingNotFound
	}
	mbid, err := c.recordings.LookupRecordingMBID(ctx, t.Artist, t.Title)
	if err != nil {
		return "", fmt.Errorf("lookup recording: %w", err)
	}
	if mbid == "" {
		c.logger.Debug("no recording for feedback", "artist", t.Artist, "track", t.Title)
		return "", ErrRecordingNotFound
	}
	return mbid, nil
}

// request performs one API call with transient retries. in is encoded as
// the JSON body when non-nil; out receives the decoded response when
// non-nil.
func (c *Client) request(ctx context.Context, method, path, token string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	return retry.Do(ctx, retry.Transient, scrobble.IsTransient, func(ctx context.Context) error {
		var body io.Reader = http.NoBody
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Token "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			err = scrobble.Classify(err)
			if scrobble.IsTransient(err) {
				c.logger.Debug("transient failure, retrying", "path", path, "error", err)
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return scrobble.StatusError(resp.StatusCode, errorMessage(resp.Body))
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}

// errorMessage extracts the "error" field of an API error body, falling
// back to the raw text.
func errorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
		return apiErr.Error
	}
	return string(raw)
}
