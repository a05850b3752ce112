package musicbrainz

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/llehouerou/scrobd/internal/scrobble"
)

const (
	coverArtBaseURL = "https://coverartarchive.org"
)

// CoverArtURL returns the front cover image URL of a release from the
// Cover Art Archive, or "" if the release has no artwork.
func (c *Client) CoverArtURL(ctx context.Context, releaseMBID string) (string, error) {
	reqURL := fmt.Sprintf("%s/release/%s", c.coverArtURL, url.PathEscape(releaseMBID))

	var result coverArtResponse
	err := c.getJSON(ctx, reqURL, false, &result)
	// 404 means no cover art available - not an error
	if errors.Is(err, scrobble.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get cover art: %w", err)
	}

	return pickFront(result.Images), nil
}

// pickFront prefers the image typed "Front", then any image. URLs are
// upgraded to https.
func pickFront(images []CoverImage) string {
	if len(images) == 0 {
		return ""
	}
	chosen := images[0]
	for _, img := range images {
		if img.Front || slices.Contains(img.Types, "Front") {
			chosen = img
			break
		}
	}
	return strings.Replace(chosen.Image, "http://", "https://", 1)
}
