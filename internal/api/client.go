package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/llehouerou/scrobd/internal/artwork"
	"github.com/llehouerou/scrobd/internal/engine"
	"github.com/llehouerou/scrobd/internal/scrobble"
)

// Client talks to a running daemon's control API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the API listening on addr ("host:port" or
// a full URL).
func NewClient(addr string) *Client {
	base := strings.TrimSuffix(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NowPlaying returns the current snapshot; ok is false when idle.
func (c *Client) NowPlaying(ctx context.Context) (np engine.NowPlaying, ok bool, err error) {
	status, err := c.do(ctx, http.MethodGet, "/now-playing", nil, &np)
	if err != nil {
		return engine.NowPlaying{}, false, err
	}
	return np, status == http.StatusOK, nil
}

// Log returns the newest log entries.
func (c *Client) Log(ctx context.Context, limit int) ([]LogEntry, error) {
	var out []LogEntry
	_, err := c.do(ctx, http.MethodGet, "/log?limit="+strconv.Itoa(limit), nil, &out)
	return out, err
}

// Love sets the favorite state of the current track; nil toggles.
func (c *Client) Love(ctx context.Context, loved *bool) (scrobble.Favorites, error) {
	var fav scrobble.Favorites
	_, err := c.do(ctx, http.MethodPost, "/love", LoveRequest{Loved: loved}, &fav)
	return fav, err
}

// ArtworkStats returns the daemon's artwork cache statistics.
func (c *Client) ArtworkStats(ctx context.Context) (artwork.Stats, error) {
	var st artwork.Stats
	_, err := c.do(ctx, http.MethodGet, "/artwork-cache", nil, &st)
	return st, err
}

// ClearArtwork empties the daemon's artwork cache.
func (c *Client) ClearArtwork(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodDelete, "/artwork-cache", nil, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e errorResponse
		if json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e) == nil && e.Error != "" {
			return resp.StatusCode, fmt.Errorf("%s %s: %s", method, path, e.Error)
		}
		return resp.StatusCode, fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}
