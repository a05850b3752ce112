package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/llehouerou/scrobd/internal/engine"
	"github.com/llehouerou/scrobd/internal/scrobble"
	"github.com/llehouerou/scrobd/internal/state"
)

const maxLogLimit = 1000

// LogEntry is the JSON form of a log entry.
type LogEntry struct {
	ID          string     `json:"id"`
	Date        time.Time  `json:"date"`
	ScrobbledAt *time.Time `json:"scrobbled_at,omitempty"`
	Title       string     `json:"title"`
	Artist      string     `json:"artist"`
	Album       string     `json:"album,omitempty"`
	Source      string     `json:"source"`
	Duration    int        `json:"duration"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
}

func toLogEntry(e state.LogEntry) LogEntry {
	return LogEntry{
		ID:          string(e.ID),
		Date:        e.Date,
		ScrobbledAt: e.ScrobbledAt,
		Title:       e.Title,
		Artist:      e.Artist,
		Album:       e.Album,
		Source:      e.Source,
		Duration:    e.Duration,
		Status:      string(e.Status()),
		Error:       e.ErrorMessage,
	}
}

// LoveRequest is the POST /love body. A missing Loved toggles.
type LoveRequest struct {
	Loved *bool `json:"loved"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) nowPlaying(w http.ResponseWriter, _ *http.Request) {
	np, ok := s.deps.Player.Current()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, np)
}

func (s *Server) nowPlayingArtwork(w http.ResponseWriter, r *http.Request) {
	np, ok := s.deps.Player.Current()
	if !ok || np.Artwork == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/"+np.Artwork.Format)
	w.Header().Set("ETag", strconv.Quote(np.Artwork.Hash))
	_, _ = w.Write(np.Artwork.Data)
}

func (s *Server) log(w http.ResponseWriter, r *http.Request) {
	limit := state.DefaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, maxLogLimit)
	}

	entries, err := s.deps.Log.Recent(limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]LogEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, toLogEntry(e))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) love(w http.ResponseWriter, r *http.Request) {
	var req LoveRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	fav, err := s.deps.Player.SetFavorite(r.Context(), req.Loved)
	switch {
	case errors.Is(err, engine.ErrIdle):
		s.writeError(w, http.StatusConflict, err)
	case errors.Is(err, engine.ErrNoBackends):
		s.writeError(w, http.StatusServiceUnavailable, err)
	case err != nil:
		s.writeJSON(w, http.StatusBadGateway, struct {
			scrobble.Favorites
			Error string `json:"error"`
		}{fav, err.Error()})
	default:
		s.writeJSON(w, http.StatusOK, fav)
	}
}

func (s *Server) artworkStats(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Artwork == nil {
		s.writeError(w, http.StatusServiceUnavailable, errArtworkDisabled)
		return
	}
	s.writeJSON(w, http.StatusOK, s.deps.Artwork.Stats())
}

func (s *Server) clearArtwork(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Artwork == nil {
		s.writeError(w, http.StatusServiceUnavailable, errArtworkDisabled)
		return
	}
	s.deps.Artwork.Clear()
	s.logger.Info("artwork cache cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}
