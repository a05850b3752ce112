package mpris

import (
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
)

const maxArtworkBytes = 10 << 20

// coverNames lists common album art filenames in priority order.
var coverNames = []string{
	"cover.jpg", "cover.png", "cover.jpeg",
	"folder.jpg", "folder.png", "folder.jpeg",
	"album.jpg", "album.png", "album.jpeg",
	"front.jpg", "front.png", "front.jpeg",
}

// FindAlbumArt looks for album art in the same directory as the track.
// Returns the path to the art file, or empty string if not found.
func FindAlbumArt(trackPath string) string {
	dir := filepath.Dir(trackPath)
	for _, name := range coverNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadArtwork returns local image bytes for a track: the player's file://
// artUrl, or else for a local track its embedded picture or a cover file
// next to it. Remote art URLs are left to the artwork resolver.
func loadArtwork(artURL, trackURL string) []byte {
	if p := filePath(artURL); p != "" {
		return readLimited(p)
	}
	if artURL != "" {
		return nil
	}
	p := filePath(trackURL)
	if p == "" {
		return nil
	}
	if data := embeddedArt(p); data != nil {
		return data
	}
	if art := FindAlbumArt(p); art != "" {
		return readLimited(art)
	}
	return nil
}

// embeddedArt reads the picture stored in the audio file's tags.
func embeddedArt(path string) []byte {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil
	}
	pic := m.Picture()
	if pic == nil || len(pic.Data) == 0 || len(pic.Data) > maxArtworkBytes {
		return nil
	}
	return pic.Data
}

func filePath(raw string) string {
	if !strings.HasPrefix(raw, "file://") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Path
}

func readLimited(path string) []byte {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxArtworkBytes+1))
	if err != nil || len(data) == 0 || len(data) > maxArtworkBytes {
		return nil
	}
	return data
}
