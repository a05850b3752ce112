package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/llehouerou/scrobd/internal/artwork"
	"github.com/llehouerou/scrobd/internal/config"
	"github.com/llehouerou/scrobd/internal/errmsg"
	"github.com/llehouerou/scrobd/internal/icons"
	"github.com/llehouerou/scrobd/internal/itunes"
	"github.com/llehouerou/scrobd/internal/lastfm"
	"github.com/llehouerou/scrobd/internal/listenbrainz"
	"github.com/llehouerou/scrobd/internal/logging"
	"github.com/llehouerou/scrobd/internal/musicbrainz"
	"github.com/llehouerou/scrobd/internal/ratelimit"
	"github.com/llehouerou/scrobd/internal/scrobble"
	"github.com/llehouerou/scrobd/internal/state"
)

// opError is a failure shown to the user as "Failed to <op>: <err>".
type opError struct {
	op      errmsg.Op
	context string
	err     error
}

func (e *opError) Error() string { return errmsg.FormatWith(e.op, e.context, e.err) }
func (e *opError) Unwrap() error { return e.err }

func fail(op errmsg.Op, err error) error {
	if err == nil {
		return nil
	}
	return &opError{op: op, err: err}
}

func failWith(op errmsg.Op, context string, err error) error {
	if err == nil {
		return nil
	}
	return &opError{op: op, context: context, err: err}
}

// app holds what every command needs: configuration, the log file and the
// sqlite store.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	logFile *os.File
	store   *state.Manager
}

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	cfgPath := fs.String("config", "", "read this config file only")
	return fs, cfgPath
}

func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFiles(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	icons.Init(cfg.Icons)
	return cfg, nil
}

func setup(cfgPath string) (*app, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, failWith(errmsg.OpConfigLoad, cfgPath, err)
	}

	logCfg := cfg.GetLogConfig()
	logger, logFile, err := logging.Setup(logCfg.Level, logCfg.Format)
	if err != nil {
		return nil, fail(errmsg.OpLoggerSetup, err)
	}

	var store *state.Manager
	if cfg.Database != "" {
		store, err = state.OpenPath(cfg.Database)
	} else {
		store, err = state.Open()
	}
	if err != nil {
		logFile.Close()
		return nil, fail(errmsg.OpStateOpen, err)
	}

	return &app{cfg: cfg, logger: logger, logFile: logFile, store: store}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close store", "error", err)
	}
	a.logFile.Close()
}

// clients builds the backend and artwork clients. MusicBrainz requests from
// every component share one limiter.
type clients struct {
	lastfm       *lastfm.Client
	listenbrainz *listenbrainz.Client
	musicbrainz  *musicbrainz.Client
	itunes       *itunes.Client
}

func (a *app) clients() *clients {
	limiter := ratelimit.New(ratelimit.MusicBrainzInterval)
	mb := musicbrainz.NewClient(limiter, a.logger)

	lf := lastfm.New(a.cfg.Lastfm.APIKey, a.cfg.Lastfm.APISecret, a.cfg.LastfmEnabled(), a.logger)
	if acct, err := a.store.GetAccount(state.ServiceLastfm); err != nil {
		a.logger.Warn("load Last.fm account", "error", err)
	} else if acct != nil {
		lf.SetSession(acct.Username, acct.Secret)
	}

	lbCfg := a.cfg.GetListenBrainzConfig()
	lb := listenbrainz.New(lbCfg.BaseURL, a.cfg.ListenBrainzEnabled(), mb, a.logger)
	if acct, err := a.store.GetAccount(state.ServiceListenBrainz); err != nil {
		a.logger.Warn("load ListenBrainz account", "error", err)
	} else if acct != nil {
		lb.SetToken(acct.Username, acct.Secret)
	}

	return &clients{lastfm: lf, listenbrainz: lb, musicbrainz: mb, itunes: itunes.New("")}
}

func (c *clients) manager(logger *slog.Logger) *scrobble.Manager {
	return scrobble.NewManager(logger, c.lastfm, c.listenbrainz)
}

// artworkCache builds the resolver with the configured primary source; the
// other source is the fallback.
func (a *app) artworkCache(c *clients) (*artwork.Cache, error) {
	artCfg := a.cfg.GetArtworkConfig()

	var primary, secondary artwork.Source = c.itunes, c.musicbrainz
	if artCfg.Source == config.SourceMusicBrainz {
		primary, secondary = c.musicbrainz, c.itunes
	}

	return artwork.New(primary, secondary, artwork.Options{
		MaxEntries:      artCfg.MaxEntries,
		MaxBytes:        artCfg.MaxBytes,
		DownloadTimeout: artCfg.DownloadTimeout(),
		ResolveTimeout:  artCfg.ResolveTimeout(),
		Logger:          a.logger,
	})
}

func (a *app) exporter() (*artwork.Exporter, error) {
	artCfg := a.cfg.GetArtworkConfig()
	return artwork.NewExporter(artCfg.ExportDir, artCfg.ThumbnailSize)
}
