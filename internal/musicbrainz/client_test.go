package musicbrainz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/llehouerou/scrobd/internal/ratelimit"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient points both MusicBrainz and the Cover Art Archive at the
// same test server and uses a short limiter interval.
func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(ratelimit.New(time.Millisecond), quietLogger(),
		WithBaseURL(srv.URL+"/ws/2"),
		WithCoverArtURL(srv.URL+"/caa"),
	)
}

func TestCleanSearchString(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Get Lucky (feat. Pharrell Williams)", "Get Lucky"},
		{"Song ft. Someone", "Song"},
		{"Bohemian Rhapsody - Remastered 2011", "Bohemian Rhapsody"},
		{"Creep (Live)", "Creep"},
		{"AC/DC", "AC DC"},
		{"What? (Is This)", "What Is This"},
		{"Left Behind", "Left Behind"},
		{`Say "Hello"`, "Say Hello"},
	}
	for _, tt := range tests {
		if got := cleanSearchString(tt.in); got != tt.want {
			t.Errorf("cleanSearchString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLookupRecordingMBID_FallsBackToLooserQueries(t *testing.T) {
	var (
		mu      sync.Mutex
		queries []string
	)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != userAgent {
			t.Errorf("User-Agent = %q", got)
		}
		q := r.URL.Query().Get("query")
		mu.Lock()
		queries = append(queries, q)
		mu.Unlock()
		if strings.Contains(q, `"`) {
			fmt.Fprint(w, `{"recordings":[]}`)
			return
		}
		fmt.Fprint(w, `{"recordings":[{"id":"rec-1","title":"Teardrop","score":100}]}`)
	}))

	mbid, err := c.LookupRecordingMBID(context.Background(), "Massive Attack", "Teardrop")
	if err != nil {
		t.Fatalf("LookupRecordingMBID: %v", err)
	}
	if mbid != "rec-1" {
		t.Errorf("mbid = %q, want rec-1", mbid)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(queries) != 2 {
		t.Fatalf("queries = %v, want 2", queries)
	}

	// Memoized: no further request, case-insensitive.
	mbid, err = c.LookupRecordingMBID(context.Background(), "massive attack", "TEARDROP")
	if err != nil || mbid != "rec-1" {
		t.Errorf("memoized lookup = %q, %v", mbid, err)
	}
	if len(queries) != 2 {
		t.Errorf("memoized lookup issued a request: %v", queries)
	}
}

func TestLookupRecordingMBID_NoMatch(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"recordings":[]}`)
	}))

	mbid, err := c.LookupRecordingMBID(context.Background(), "Nobody", "Nothing")
	if err != nil {
		t.Fatalf("LookupRecordingMBID: %v", err)
	}
	if mbid != "" {
		t.Errorf("mbid = %q, want empty", mbid)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestClient_ServiceUnavailable(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := c.SearchRelease(context.Background(), "A", "B")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestArtworkURL_AlbumRelease(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/2/release", func(w http.ResponseWriter, r *http.Request) {
		if q := r.URL.Query().Get("query"); q != `release:"Mezzanine" AND artist:"Massive Attack"` {
			t.Errorf("query = %q", q)
		}
		fmt.Fprint(w, `{"releases":[{"id":"rel-1"}]}`)
	})
	mux.HandleFunc("/caa/release/rel-1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"images":[
			{"image":"http://coverartarchive.org/back.jpg","front":false,"types":["Back"]},
			{"image":"http://coverartarchive.org/front.jpg","front":true,"types":["Front"]}
		]}`)
	})
	c := newTestClient(t, mux)

	u, err := c.ArtworkURL(context.Background(), "Massive Attack", "Teardrop", "Mezzanine")
	if err != nil {
		t.Fatalf("ArtworkURL: %v", err)
	}
	if u != "https://coverartarchive.org/front.jpg" {
		t.Errorf("url = %q", u)
	}
}

func TestArtworkURL_RecordingReleases(t *testing.T) {
	var caaCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/2/recording", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"recordings":[{"id":"rec-1"}]}`)
	})
	mux.HandleFunc("/ws/2/recording/rec-1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"id":"rec-1","releases":[{"id":"r1"},{"id":"r2"},{"id":"r3"},{"id":"r4"}]}`)
	})
	mux.HandleFunc("/caa/release/", func(w http.ResponseWriter, r *http.Request) {
		caaCalls.Add(1)
		if strings.HasSuffix(r.URL.Path, "/r2") {
			fmt.Fprint(w, `{"images":[{"image":"https://example.org/r2.jpg","types":["Medium"]}]}`)
			return
		}
		http.NotFound(w, r)
	})
	c := newTestClient(t, mux)

	u, err := c.ArtworkURL(context.Background(), "Massive Attack", "Teardrop", "")
	if err != nil {
		t.Fatalf("ArtworkURL: %v", err)
	}
	if u != "https://example.org/r2.jpg" {
		t.Errorf("url = %q", u)
	}
	if caaCalls.Load() != 2 {
		t.Errorf("cover art calls = %d, want 2", caaCalls.Load())
	}
}

func TestArtworkURL_NothingFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/2/recording", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"recordings":[{"id":"rec-1"}]}`)
	})
	mux.HandleFunc("/ws/2/recording/rec-1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"id":"rec-1","releases":[{"id":"r1"},{"id":"r2"},{"id":"r3"},{"id":"r4"}]}`)
	})
	mux.HandleFunc("/caa/release/", http.NotFound)
	c := newTestClient(t, mux)

	u, err := c.ArtworkURL(context.Background(), "A", "B", "")
	if err != nil {
		t.Fatalf("ArtworkURL: %v", err)
	}
	if u != "" {
		t.Errorf("url = %q, want empty", u)
	}
}

func TestParseRetryAfter(t *testing.T) {
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"3"}}}
	if got := parseRetryAfter(resp); got != 3*time.Second {
		t.Errorf("parseRetryAfter = %v, want 3s", got)
	}
	if got := parseRetryAfter(&http.Response{Header: http.Header{}}); got != 0 {
		t.Errorf("parseRetryAfter(empty) = %v, want 0", got)
	}
}
