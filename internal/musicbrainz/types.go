// Package musicbrainz provides a rate-limited client for the MusicBrainz
// and Cover Art Archive APIs.
package musicbrainz

// Recording represents a MusicBrainz recording search hit.
type Recording struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Score int    `json:"score"`
}

// Release represents a MusicBrainz release (album).
type Release struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Date  string `json:"date"`
	Score int    `json:"score"`
}

// CoverImage is one image listed by the Cover Art Archive.
type CoverImage struct {
	Image string   `json:"image"`
	Front bool     `json:"front"`
	Types []string `json:"types"`
}

// Internal types for API responses

type recordingSearchResponse struct {
	Recordings []Recording `json:"recordings"`
}

type releaseSearchResponse struct {
	Releases []Release `json:"releases"`
}

type recordingResponse struct {
	ID       string    `json:"id"`
	Releases []Release `json:"releases"`
}

type coverArtResponse struct {
	Images []CoverImage `json:"images"`
}
