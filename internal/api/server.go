// Package api serves the local HTTP control API.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/llehouerou/scrobd/internal/artwork"
	"github.com/llehouerou/scrobd/internal/engine"
	"github.com/llehouerou/scrobd/internal/scrobble"
	"github.com/llehouerou/scrobd/internal/state"
)

const shutdownTimeout = 5 * time.Second

// Player is the engine surface the API drives.
type Player interface {
	Current() (engine.NowPlaying, bool)
	SetFavorite(ctx context.Context, loved *bool) (scrobble.Favorites, error)
}

// LogReader lists log entries.
type LogReader interface {
	Recent(limit int) ([]state.LogEntry, error)
}

// ArtworkCache is the artwork cache surface the API exposes.
type ArtworkCache interface {
	Stats() artwork.Stats
	Clear()
}

var errArtworkDisabled = errors.New("artwork is disabled")

// Deps holds the components behind the API. Artwork may be nil.
type Deps struct {
	Player  Player
	Log     LogReader
	Artwork ArtworkCache
	Logger  *slog.Logger
}

// Server is the control API.
type Server struct {
	router chi.Router
	deps   Deps
	logger *slog.Logger
}

// New creates the API server and its routes.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router: chi.NewRouter(),
		deps:   deps,
		logger: logger.With("component", "api"),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.logRequests)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/now-playing", s.nowPlaying)
	s.router.Get("/now-playing/artwork", s.nowPlayingArtwork)
	s.router.Get("/log", s.log)
	s.router.Post("/love", s.love)
	s.router.Get("/artwork-cache", s.artworkStats)
	s.router.Delete("/artwork-cache", s.clearArtwork)
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control API listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
