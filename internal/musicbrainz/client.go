package musicbrainz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/llehouerou/scrobd/internal/ratelimit"
	"github.com/llehouerou/scrobd/internal/retry"
	"github.com/llehouerou/scrobd/internal/scrobble"
)

const (
	baseURL   = "https://musicbrainz.org/ws/2"
	userAgent = "scrobd/0.1 (https://github.com/llehouerou/scrobd)"

	// recordingReleaseCandidates is how many releases of a recording are
	// tried for cover art.
	recordingReleaseCandidates = 3
)

// ErrUnavailable is returned for 429 and 503 responses, which MusicBrainz
// sends routinely under load.
var ErrUnavailable = errors.New("musicbrainz temporarily unavailable")

// Client provides access to the MusicBrainz API. Every MusicBrainz request
// goes through the shared limiter; Cover Art Archive requests do not.
type Client struct {
	httpClient  *http.Client
	limiter     *ratelimit.Limiter
	logger      *slog.Logger
	baseURL     string
	coverArtURL string

	mu    sync.Mutex
	mbids map[string]string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the MusicBrainz endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithCoverArtURL overrides the Cover Art Archive endpoint.
func WithCoverArtURL(u string) Option {
	return func(c *Client) { c.coverArtURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient creates a new MusicBrainz API client. The limiter must be the
// one shared by every MusicBrainz caller in the process.
func NewClient(limiter *ratelimit.Limiter, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.MusicBrainzInterval)
	}
	c := &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     limiter,
		logger:      logger.With("component", "musicbrainz"),
		baseURL:     baseURL,
		coverArtURL: coverArtBaseURL,
		mbids:       make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LookupRecordingMBID finds the recording ID for a track, trying
// progressively looser queries. Results are memoized for the process
// lifetime. Returns "" with a nil error when nothing matches.
func (c *Client) LookupRecordingMBID(ctx context.Context, artist, track string) (string, error) {
	key := strings.ToLower(artist) + ":" + strings.ToLower(track)
	c.mu.Lock()
	if mbid, ok := c.mbids[key]; ok {
		c.mu.Unlock()
		return mbid, nil
	}
	c.mu.Unlock()

	cleanTrack := cleanSearchString(track)
	cleanArtist := cleanSearchString(artist)
	queries := []string{
		fmt.Sprintf(`recording:"%s" AND artist:"%s"`, cleanTrack, cleanArtist),
		fmt.Sprintf(`recording:%s AND artist:%s`, cleanTrack, cleanArtist),
		cleanTrack + " " + cleanArtist,
	}

	for _, q := range queries {
		recordings, err := c.SearchRecordings(ctx, q, 5)
		if err != nil {
			return "", err
		}
		if len(recordings) > 0 && recordings[0].ID != "" {
			mbid := recordings[0].ID
			c.mu.Lock()
			c.mbids[key] = mbid
			c.mu.Unlock()
			return mbid, nil
		}
	}
	return "", nil
}

// SearchRecordings runs a Lucene recording query.
func (c *Client) SearchRecordings(ctx context.Context, query string, limit int) ([]Recording, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("fmt", "json")
	params.Set("limit", strconv.Itoa(limit))

	var result recordingSearchResponse
	if err := c.getLimited(ctx, c.baseURL+"/recording?"+params.Encode(), &result); err != nil {
		return nil, fmt.Errorf("search recordings: %w", err)
	}
	return result.Recordings, nil
}

// SearchRelease returns the best matching release ID for an album, or "".
func (c *Client) SearchRelease(ctx context.Context, artist, album string) (string, error) {
	params := url.Values{}
	params.Set("query", fmt.Sprintf(`release:"%s" AND artist:"%s"`, album, artist))
	params.Set("fmt", "json")
	params.Set("limit", "1")

	var result releaseSearchResponse
	if err := c.getLimited(ctx, c.baseURL+"/release?"+params.Encode(), &result); err != nil {
		return "", fmt.Errorf("search release: %w", err)
	}
	if len(result.Releases) == 0 {
		return "", nil
	}
	return result.Releases[0].ID, nil
}

// RecordingReleases returns the releases a recording appears on.
func (c *Client) RecordingReleases(ctx context.Context, mbid string) ([]Release, error) {
	params := url.Values{}
	params.Set("inc", "releases")
	params.Set("fmt", "json")

	var result recordingResponse
	reqURL := fmt.Sprintf("%s/recording/%s?%s", c.baseURL, url.PathEscape(mbid), params.Encode())
	if err := c.getLimited(ctx, reqURL, &result); err != nil {
		if errors.Is(err, scrobble.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return result.Releases, nil
}

// ArtworkURL resolves a front cover URL through MusicBrainz and the Cover
// Art Archive: the album's release first, then releases of the recording.
// Returns "" with a nil error when no artwork exists.
func (c *Client) ArtworkURL(ctx context.Context, artist, track, album string) (string, error) {
	if album != "" {
		releaseID, err := c.SearchRelease(ctx, artist, album)
		if err != nil {
			return "", err
		}
		if releaseID != "" {
			u, err := c.CoverArtURL(ctx, releaseID)
			if err != nil || u != "" {
				return u, err
			}
		}
	}

	mbid, err := c.LookupRecordingMBID(ctx, artist, track)
	if err != nil || mbid == "" {
		return "", err
	}
	releases, err := c.RecordingReleases(ctx, mbid)
	if err != nil {
		return "", err
	}
	for i, r := range releases {
		if i == recordingReleaseCandidates {
			break
		}
		u, err := c.CoverArtURL(ctx, r.ID)
		if err != nil {
			return "", err
		}
		if u != "" {
			return u, nil
		}
	}
	return "", nil
}

// getLimited waits for the shared limiter before each attempt.
func (c *Client) getLimited(ctx context.Context, reqURL string, out any) error {
	return c.getJSON(ctx, reqURL, true, out)
}

func (c *Client) getJSON(ctx context.Context, reqURL string, limited bool, out any) error {
	return retry.Do(ctx, retry.Transient, scrobble.IsTransient, func(ctx context.Context) error {
		if limited {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return scrobble.Classify(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
			if limited {
				c.limiter.Defer(parseRetryAfter(resp))
			}
			c.logger.Debug("service busy", "status", resp.StatusCode, "url", reqURL)
			return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		case resp.StatusCode == http.StatusNotFound:
			return scrobble.ErrNotFound
		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			c.logger.Error("unexpected response", "status", resp.StatusCode, "url", reqURL)
			return fmt.Errorf("API status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}

// parseRetryAfter reads a Retry-After header in seconds or HTTP-date form.
func parseRetryAfter(resp *http.Response) time.Duration {
	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(ra); err == nil {
		return time.Until(t)
	}
	return 0
}

var (
	featuringPattern = regexp.MustCompile(`(?i)\s*\(?\b(feat\.|ft\.|featuring\b).*$`)
	versionPattern   = regexp.MustCompile(`(?i)\s*(- |\()(remaster(ed)?|live|explicit|radio edit|single version)\b.*$`)
	luceneSpecial    = strings.NewReplacer(
		`\`, " ", "+", " ", "-", " ", "&&", " ", "||", " ", "!", " ",
		"(", " ", ")", " ", "{", " ", "}", " ", "[", " ", "]", " ",
		"^", " ", "~", " ", "*", " ", "?", " ", ":", " ", "/", " ", `"`, " ",
	)
	multiSpace = regexp.MustCompile(`\s+`)
)

// cleanSearchString strips featured artists and version suffixes and
// removes Lucene syntax characters so the string is safe in a query.
func cleanSearchString(s string) string {
	s = featuringPattern.ReplaceAllString(s, "")
	s = versionPattern.ReplaceAllString(s, "")
	s = luceneSpecial.Replace(s)
	return strings.TrimSpace(multiSpace.ReplaceAllString(s, " "))
}
