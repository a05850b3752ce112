package listenbrainz

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"syscall"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/scrobd/internal/scrobble"
)

type fakeLookup struct {
	mbid string
	err  error
}

func (f fakeLookup) LookupRecordingMBID(context.Context, string, string) (string, error) {
	return f.mbid, f.err
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]any
}

// recorder captures requests and answers each with the same status and body.
type recorder struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	body     string
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	rec := recordedRequest{
		Method: req.Method,
		Path:   req.URL.Path,
		Query:  req.URL.RawQuery,
		Auth:   req.Header.Get("Authorization"),
	}
	if req.Body != nil {
		_ = json.NewDecoder(req.Body).Decode(&rec.Body)
	}
	r.mu.Lock()
	r.requests = append(r.requests, rec)
	r.mu.Unlock()

	if r.status != 0 {
		w.WriteHeader(r.status)
	}
	io.WriteString(w, r.body)
}

func (r *recorder) all() []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedRequest(nil), r.requests...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, rec *recorder, lookup RecordingLookup) *Client {
	t.Helper()
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)
	c := New(srv.URL, true, lookup, quietLogger())
	c.SetToken("alice", "tok-123")
	return c
}

var track = scrobble.Track{
	Artist:      "Massive Attack",
	Title:       "Teardrop",
	Album:       "Mezzanine",
	DurationSec: 330,
	StartedAt:   time.Unix(1700000000, 0),
}

func TestScrobble_Payload(t *testing.T) {
	rec := &recorder{body: `{"status":"ok"}`}
	c := newTestClient(t, rec, nil)

	require.NoError(t, c.Scrobble(context.Background(), track))

	reqs := rec.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/1/submit-listens", reqs[0].Path)
	assert.Equal(t, "Token tok-123", reqs[0].Auth)
	assert.Equal(t, "single", reqs[0].Body["listen_type"])

	payload := reqs[0].Body["payload"].([]any)
	require.Len(t, payload, 1)
	l := payload[0].(map[string]any)
	assert.InDelta(t, 1700000000, l["listened_at"], 0)
	meta := l["track_metadata"].(map[string]any)
	assert.Equal(t, "Massive Attack", meta["artist_name"])
	assert.Equal(t, "Teardrop", meta["track_name"])
	assert.Equal(t, "Mezzanine", meta["release_name"])
	assert.InDelta(t, 330000, meta["additional_info"].(map[string]any)["duration_ms"], 0)
}

func TestNowPlaying_Payload(t *testing.T) {
	rec := &recorder{body: `{"status":"ok"}`}
	c := newTestClient(t, rec, nil)

	bare := scrobble.Track{Artist: "A", Title: "B"}
	require.NoError(t, c.NowPlaying(context.Background(), bare))

	reqs := rec.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, "playing_now", reqs[0].Body["listen_type"])
	l := reqs[0].Body["payload"].([]any)[0].(map[string]any)
	assert.NotContains(t, l, "listened_at")
	meta := l["track_metadata"].(map[string]any)
	assert.NotContains(t, meta, "release_name")
	assert.NotContains(t, meta, "additional_info")
}

func TestSubmit_NotAuthenticated(t *testing.T) {
	c := New("http://127.0.0.1:0", true, nil, quietLogger())
	assert.False(t, c.Authenticated())
	assert.ErrorIs(t, c.Scrobble(context.Background(), track), scrobble.ErrNotAuthenticated)
}

func TestSubmit_StatusErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, scrobble.ErrInvalidToken},
		{http.StatusTooManyRequests, scrobble.ErrRateLimited},
	}
	for _, tt := range tests {
		rec := &recorder{status: tt.status, body: `{"code":1,"error":"nope"}`}
		c := newTestClient(t, rec, nil)
		err := c.Scrobble(context.Background(), track)
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
		assert.Len(t, rec.all(), 1, "status %d must not be retried", tt.status)
	}

	rec := &recorder{status: http.StatusBadRequest, body: `{"code":400,"error":"Invalid JSON document submitted."}`}
	c := newTestClient(t, rec, nil)
	err := c.Scrobble(context.Background(), track)
	var apiErr *scrobble.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Code)
	assert.Equal(t, "Invalid JSON document submitted.", apiErr.Message)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestSubmit_RetriesConnectionReset(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := New("https://lb.test", true, nil, quietLogger())
		c.SetToken("alice", "tok")

		var attempts []time.Time
		c.httpClient.Transport = roundTripFunc(func(*http.Request) (*http.Response, error) {
			attempts = append(attempts, time.Now())
			if len(attempts) < 3 {
				return nil, &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}
			}
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(`{"status":"ok"}`)),
				Header:     http.Header{},
			}, nil
		})

		require.NoError(t, c.Scrobble(context.Background(), track))
		require.Len(t, attempts, 3)
		assert.Equal(t, 500*time.Millisecond, attempts[1].Sub(attempts[0]))
		assert.Equal(t, time.Second, attempts[2].Sub(attempts[1]))
	})
}

func TestSetLoved(t *testing.T) {
	rec := &recorder{body: `{"status":"ok"}`}
	c := newTestClient(t, rec, fakeLookup{mbid: "rec-1"})

	require.NoError(t, c.SetLoved(context.Background(), track, true))
	require.NoError(t, c.SetLoved(context.Background(), track, false))

	reqs := rec.all()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/1/feedback/recording-feedback", reqs[0].Path)
	assert.Equal(t, "rec-1", reqs[0].Body["recording_mbid"])
	assert.InDelta(t, 1, reqs[0].Body["score"], 0)
	assert.InDelta(t, 0, reqs[1].Body["score"], 0)
}

func TestSetLoved_NoRecording(t *testing.T) {
	rec := &recorder{}
	c := newTestClient(t, rec, fakeLookup{})

	err := c.SetLoved(context.Background(), track, true)
	assert.ErrorIs(t, err, ErrRecordingNotFound)
	assert.ErrorIs(t, err, scrobble.ErrNotFound)
	assert.Empty(t, rec.all())
}

func TestSetLoved_LookupError(t *testing.T) {
	c := newTestClient(t, &recorder{}, fakeLookup{err: errors.New("musicbrainz down")})
	err := c.SetLoved(context.Background(), track, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "musicbrainz down")
}

func TestIsLoved(t *testing.T) {
	rec := &recorder{body: `{"feedback":[{"score":1,"recording_mbid":"rec-1"}]}`}
	c := newTestClient(t, rec, fakeLookup{mbid: "rec-1"})

	loved, err := c.IsLoved(context.Background(), track)
	require.NoError(t, err)
	assert.True(t, loved)

	reqs := rec.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/1/feedback/user/alice/get-feedback-for-recording", reqs[0].Path)
	assert.Equal(t, "recording_mbid=rec-1", reqs[0].Query)
}

func TestIsLoved_NoFeedback(t *testing.T) {
	rec := &recorder{body: `{"feedback":[]}`}
	c := newTestClient(t, rec, fakeLookup{mbid: "rec-1"})

	loved, err := c.IsLoved(context.Background(), track)
	require.NoError(t, err)
	assert.False(t, loved)

	c = newTestClient(t, &recorder{}, fakeLookup{})
	loved, err = c.IsLoved(context.Background(), track)
	require.NoError(t, err)
	assert.False(t, loved)
}

func TestValidateToken(t *testing.T) {
	rec := &recorder{body: `{"code":200,"message":"Token valid.","valid":true,"user_name":"alice"}`}
	c := newTestClient(t, rec, nil)

	user, err := c.ValidateToken(context.Background(), "new-token")
	require.NoError(t, err)
	assert.Equal(t, "alice", user)
	assert.Equal(t, "Token new-token", rec.all()[0].Auth)

	rec = &recorder{body: `{"code":200,"message":"Token invalid.","valid":false}`}
	c = newTestClient(t, rec, nil)
	_, err = c.ValidateToken(context.Background(), "bad")
	assert.ErrorIs(t, err, scrobble.ErrInvalidToken)
}
