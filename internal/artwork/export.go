package artwork

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/nfnt/resize"
)

const (
	exportDirName = "scrobd/artwork"
	exportMaxAge  = 30 * 24 * time.Hour
	pruneInterval = 24 * time.Hour

	DefaultThumbnailSize = 64
)

// Thumbnail scales img to fit within size x size, keeping its aspect ratio.
func Thumbnail(img *Image, size int) image.Image {
	if size <= 0 {
		size = DefaultThumbnailSize
	}
	return resize.Thumbnail(uint(size), uint(size), img.Decoded(), resize.Lanczos3) //nolint:gosec // size is positive
}

// Exporter writes PNG thumbnails to disk so they can be referenced by path,
// as desktop notification icons require.
type Exporter struct {
	dir  string
	size int

	mu         sync.Mutex
	lastPruned time.Time
}

// NewExporter creates an exporter writing below baseDir, or the XDG cache
// directory when baseDir is empty.
func NewExporter(baseDir string, size int) (*Exporter, error) {
	if baseDir == "" {
		baseDir = xdg.CacheHome
	}
	if size <= 0 {
		size = DefaultThumbnailSize
	}

	dir := filepath.Join(baseDir, exportDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	return &Exporter{dir: dir, size: size}, nil
}

// Dir returns the directory thumbnails are written to.
func (e *Exporter) Dir() string { return e.dir }

func (e *Exporter) path(img *Image) string {
	return filepath.Join(e.dir, fmt.Sprintf("%s-%d.png", img.Hash, e.size))
}

// Export writes the thumbnail of img, unless it already exists, and returns
// its path.
func (e *Exporter) Export(img *Image) (string, error) {
	path := e.path(img)
	if _, err := os.Stat(path); err == nil {
		// Touch the file to keep frequently used thumbnails fresh
		now := time.Now()
		_ = os.Chtimes(path, now, now) //nolint:errcheck // best-effort
		return path, nil
	}

	tmp, err := os.CreateTemp(e.dir, ".export-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after rename

	if err := png.Encode(tmp, Thumbnail(img, e.size)); err != nil {
		tmp.Close()
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close thumbnail: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename thumbnail: %w", err)
	}
	return path, nil
}

// Prune removes thumbnails older than 30 days. It does nothing when called
// again within a day. Returns the number of files removed.
func (e *Exporter) Prune() int {
	e.mu.Lock()
	if time.Since(e.lastPruned) < pruneInterval {
		e.mu.Unlock()
		return 0
	}
	e.lastPruned = time.Now()
	e.mu.Unlock()

	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return 0
	}

	cutoff := time.Now().Add(-exportMaxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if os.Remove(filepath.Join(e.dir, entry.Name())) == nil {
				removed++
			}
		}
	}
	return removed
}
