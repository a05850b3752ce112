// Package itunes looks up album artwork through the iTunes Search API.
package itunes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/llehouerou/scrobd/internal/retry"
	"github.com/llehouerou/scrobd/internal/scrobble"
)

const (
	baseURL   = "https://itunes.apple.com"
	userAgent = "scrobd/0.1 (https://github.com/llehouerou/scrobd)"

	searchLimit = 10
)

// Client is an iTunes Search API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New creates a new iTunes client. An empty endpoint selects the public API.
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = baseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: strings.TrimRight(endpoint, "/"),
	}
}

// Result is one song returned by a search.
type Result struct {
	ArtworkURL100  string `json:"artworkUrl100"`
	ArtistName     string `json:"artistName"`
	TrackName      string `json:"trackName"`
	CollectionName string `json:"collectionName"`
}

type searchResponse struct {
	ResultCount int      `json:"resultCount"`
	Results     []Result `json:"results"`
}

// Search returns songs matching the given terms.
func (c *Client) Search(ctx context.Context, terms ...string) ([]Result, error) {
	var parts []string
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}

	params := url.Values{}
	params.Set("term", strings.Join(parts, " "))
	params.Set("media", "music")
	params.Set("entity", "song")
	params.Set("limit", fmt.Sprint(searchLimit))
	reqURL := fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode())

	var result searchResponse
	err := retry.Do(ctx, retry.Transient, scrobble.IsTransient, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return scrobble.Classify(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return scrobble.StatusError(resp.StatusCode, resp.Status)
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("itunes search: %w", err)
	}
	return result.Results, nil
}

// ArtworkURL returns a 600x600 artwork URL for the best matching song, or
// "" when the search has no results.
func (c *Client) ArtworkURL(ctx context.Context, artist, track, album string) (string, error) {
	results, err := c.Search(ctx, artist, track, album)
	if err != nil {
		return "", err
	}
	u := BestMatch(results, artist, track, album)
	return strings.Replace(u, "100x100", "600x600", 1), nil
}

// BestMatch scores results against the requested track and returns the
// artwork URL of the highest scorer. When nothing scores above zero the
// first result wins.
func BestMatch(results []Result, artist, track, album string) string {
	if len(results) == 0 {
		return ""
	}
	artist = strings.ToLower(artist)
	track = strings.ToLower(track)
	album = strings.ToLower(album)

	best, bestScore := "", 0
	for _, r := range results {
		if s := score(r, artist, track, album); s > bestScore {
			best, bestScore = r.ArtworkURL100, s
		}
	}
	if best == "" {
		return results[0].ArtworkURL100
	}
	return best
}

func score(r Result, artist, track, album string) int {
	s := 0
	resultArtist := strings.ToLower(r.ArtistName)
	if overlaps(resultArtist, artist) {
		s += 10
	}
	if overlaps(strings.ToLower(r.TrackName), track) {
		s += 10
	}
	if album != "" && r.CollectionName != "" {
		resultAlbum := strings.ToLower(r.CollectionName)
		if overlaps(resultAlbum, album) {
			s += 15
		}
		if isCompilation(resultAlbum) {
			s -= 5
		}
	}
	if strings.Contains(resultArtist, "various") {
		s -= 10
	}
	return s
}

// overlaps reports whether either string contains the other.
func overlaps(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func isCompilation(album string) bool {
	for _, marker := range []string{"greatest hits", "best of", "compilation", "collection"} {
		if strings.Contains(album, marker) {
			return true
		}
	}
	return false
}
