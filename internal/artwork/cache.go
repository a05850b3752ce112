package artwork

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/llehouerou/scrobd/internal/playback"
)

const (
	DefaultMaxEntries      = 100
	DefaultMaxBytes        = 30 << 20
	DefaultDownloadTimeout = 5 * time.Second
	DefaultResolveTimeout  = 10 * time.Second

	maxDownloadBytes = 20 << 20
	userAgent        = "scrobd/0.1 (https://github.com/llehouerou/scrobd)"
)

// Options bounds the cache and its network calls. Zero values select the
// defaults.
type Options struct {
	MaxEntries      int
	MaxBytes        int64
	DownloadTimeout time.Duration
	ResolveTimeout  time.Duration
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxEntries <= 0 {
		o.MaxEntries = DefaultMaxEntries
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	if o.DownloadTimeout <= 0 {
		o.DownloadTimeout = DefaultDownloadTimeout
	}
	if o.ResolveTimeout <= 0 {
		o.ResolveTimeout = DefaultResolveTimeout
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Stats describes the cache contents.
type Stats struct {
	Images   int   `json:"images"`    // distinct images held
	Bytes    int64 `json:"bytes"`     // approximate decoded size of held images
	Keys     int   `json:"keys"`      // tracks mapped to an image
	URLs     int   `json:"urls"`      // tracks with a remembered source URL
	NotFound int   `json:"not_found"` // tracks known to have no artwork
}

// Cache resolves tracks to artwork. Images are stored once per content
// hash; tracks map to hashes. Concurrent resolutions of the same track
// share one in-flight lookup.
type Cache struct {
	primary   Source
	secondary Source
	opts      Options
	logger    *slog.Logger
	group     singleflight.Group

	mu       sync.Mutex
	images   *simplelru.LRU[string, *Image]
	bytes    int64
	hashes   map[string]string
	urls     map[string]string
	notFound map[string]struct{}
}

// New creates a cache over a primary source and an optional secondary
// source consulted for tracks with an album.
func New(primary, secondary Source, opts Options) (*Cache, error) {
	if primary == nil {
		return nil, fmt.Errorf("artwork: primary source is required")
	}
	opts = opts.withDefaults()
	c := &Cache{
		primary:   primary,
		secondary: secondary,
		opts:      opts,
		logger:    opts.Logger.With("component", "artwork"),
		hashes:    make(map[string]string),
		urls:      make(map[string]string),
		notFound:  make(map[string]struct{}),
	}
	images, err := simplelru.NewLRU(opts.MaxEntries, func(_ string, img *Image) {
		c.bytes -= img.Cost()
	})
	if err != nil {
		return nil, fmt.Errorf("artwork: %w", err)
	}
	c.images = images
	return c, nil
}

// Key returns the cache key for a track.
func Key(artist, track, album string) string {
	return string(playback.Key(artist, track, album))
}

// Resolve returns artwork for a track, or nil when none is available or
// the lookup did not finish in time. It never fails.
func (c *Cache) Resolve(ctx context.Context, artist, track, album string) *Image {
	key := Key(artist, track, album)
	img, knownURL, done := c.lookup(key)
	if done {
		return img
	}

	// The shared resolution must outlive any single caller.
	base := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return c.resolve(base, key, artist, track, album, knownURL), nil
	})
	select {
	case res := <-ch:
		img, _ := res.Val.(*Image)
		return img
	case <-ctx.Done():
		return nil
	}
}

// lookup answers from memory. done is false when a network resolution is
// needed; knownURL is then the last URL that produced artwork for key.
func (c *Cache) lookup(key string) (img *Image, knownURL string, done bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.notFound[key]; ok {
		return nil, "", true
	}
	if hash, ok := c.hashes[key]; ok {
		if img, ok := c.images.Get(hash); ok {
			return img, "", true
		}
	}
	return nil, c.urls[key], false
}

func (c *Cache) resolve(ctx context.Context, key, artist, track, album, knownURL string) *Image {
	if knownURL != "" {
		img, err := c.download(ctx, knownURL)
		if err == nil {
			return c.store(key, knownURL, img)
		}
		c.logger.Debug("cached artwork url failed", "url", knownURL, "error", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.ResolveTimeout)
	defer cancel()

	candidates, confirmedEmpty := c.findURLs(ctx, artist, track, album)
	if len(candidates) == 0 {
		if confirmedEmpty {
			c.markNotFound(key)
		}
		return nil
	}
	for _, u := range candidates {
		img, err := c.download(ctx, u)
		if err != nil {
			c.logger.Debug("artwork download failed", "url", u, "error", err)
			continue
		}
		return c.store(key, u, img)
	}
	return nil
}

// findURLs queries the primary source and, when album is set, the secondary
// source concurrently. Candidates are ordered primary first. confirmedEmpty
// is true only when every queried source answered without error.
func (c *Cache) findURLs(ctx context.Context, artist, track, album string) (candidates []string, confirmedEmpty bool) {
	var g errgroup.Group
	var primaryURL, secondaryURL string
	g.Go(func() error {
		var err error
		primaryURL, err = c.primary.ArtworkURL(ctx, artist, track, album)
		return err
	})
	if album != "" && c.secondary != nil {
		g.Go(func() error {
			var err error
			secondaryURL, err = c.secondary.ArtworkURL(ctx, artist, track, album)
			return err
		})
	}
	err := g.Wait()
	if err != nil {
		c.logger.Debug("artwork lookup failed", "artist", artist, "track", track, "error", err)
	}

	for _, u := range []string{primaryURL, secondaryURL} {
		if u != "" {
			candidates = append(candidates, u)
		}
	}
	return candidates, err == nil && ctx.Err() == nil
}

func (c *Cache) download(ctx context.Context, u string) (*Image, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return Decode(data)
}

// Store decodes artwork supplied by the player and caches it for the track.
func (c *Cache) Store(artist, track, album string, data []byte) (*Image, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return c.store(Key(artist, track, album), "", img), nil
}

// store maps key to img and returns the cached image with the same hash,
// which is img itself unless identical artwork was already held.
func (c *Cache) store(key, u string, img *Image) *Image {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.notFound, key)
	c.hashes[key] = img.Hash
	if u != "" {
		c.urls[key] = u
	}

	if existing, ok := c.images.Get(img.Hash); ok {
		return existing
	}
	c.images.Add(img.Hash, img)
	c.bytes += img.Cost()
	for c.bytes > c.opts.MaxBytes && c.images.Len() > 1 {
		c.images.RemoveOldest()
	}
	return img
}

func (c *Cache) markNotFound(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.hashes, key)
	delete(c.urls, key)
	c.notFound[key] = struct{}{}
}

// Clear drops every image, URL and not-found record.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.images.Purge()
	c.bytes = 0
	clear(c.hashes)
	clear(c.urls)
	clear(c.notFound)
}

// Stats returns a snapshot of the cache contents.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Images:   c.images.Len(),
		Bytes:    c.bytes,
		Keys:     len(c.hashes),
		URLs:     len(c.urls),
		NotFound: len(c.notFound),
	}
}
