package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/llehouerou/scrobd/internal/api"
	"github.com/llehouerou/scrobd/internal/engine"
	"github.com/llehouerou/scrobd/internal/errmsg"
	"github.com/llehouerou/scrobd/internal/mpris"
	"github.com/llehouerou/scrobd/internal/notify"
	"github.com/llehouerou/scrobd/internal/playback"
)

// start builds the engine and starts notifications and the control API.
// They stop when ctx is done.
func (a *app) start(ctx context.Context) *engine.Engine {
	c := a.clients()

	svc := engine.Services{
		Log:      a.store,
		Backends: c.manager(a.logger),
		Logger:   a.logger,
	}
	cache, err := a.artworkCache(c)
	if err != nil {
		a.logger.Warn("artwork disabled", "error", err)
	} else {
		svc.Artwork = cache
	}

	eng := engine.New(svc, a.cfg.Scrobble())
	a.logger.Info("engine started",
		"scrobble_percent", eng.Settings().ScrobblePercent,
		"lastfm", c.lastfm.Enabled() && c.lastfm.Authenticated(),
		"listenbrainz", c.listenbrainz.Enabled() && c.listenbrainz.Authenticated())

	if a.cfg.NotificationsEnabled() {
		a.startNotifications(ctx, eng)
	}

	if a.cfg.HasAPIConfig() {
		deps := api.Deps{Player: eng, Log: a.store, Logger: a.logger}
		if cache != nil {
			deps.Artwork = cache
		}
		srv := api.New(deps)
		go func() {
			if err := srv.ListenAndServe(ctx, a.cfg.API.Listen); err != nil {
				a.logger.Error(errmsg.FormatWith(errmsg.OpAPIStart, a.cfg.API.Listen, err))
			}
		}()
	}

	return eng
}

func (a *app) startNotifications(ctx context.Context, eng *engine.Engine) {
	n, err := notify.New()
	if err != nil {
		a.logger.Warn("notifications disabled", "error", err)
		return
	}

	var art notify.IconExporter
	if exp, err := a.exporter(); err != nil {
		a.logger.Warn("notification icons disabled", "error", err)
	} else {
		art = exp
		go func() {
			if removed := exp.Prune(); removed > 0 {
				a.logger.Debug("pruned artwork exports", "removed", removed)
			}
		}()
	}

	timeout := time.Duration(a.cfg.GetNotificationsConfig().TimeoutMs) * time.Millisecond
	w := notify.NewWatcher(n, art, timeout, a.logger.With("component", "notify"))
	go w.Run(ctx, eng.Subscribe())
}

// openSource picks the event source: stdin when asked, otherwise MPRIS.
func (a *app) openSource(stdin bool) (playback.Source, error) {
	if stdin || !a.cfg.MPRISEnabled() {
		a.logger.Info("reading events from stdin")
		return playback.NewLineSource(os.Stdin, a.logger), nil
	}
	src, err := mpris.NewSource(a.logger.With("component", "mpris"), a.cfg.Sources.MPRISIgnore)
	if errors.Is(err, mpris.ErrUnsupported) {
		a.logger.Warn("MPRIS unavailable, reading events from stdin")
		return playback.NewLineSource(os.Stdin, a.logger), nil
	}
	if err != nil {
		return nil, fail(errmsg.OpSourceStart, err)
	}
	return src, nil
}

func runDaemon(args []string) error {
	fs, cfgPath := newFlagSet("run")
	stdin := fs.Bool("stdin", false, "read JSON-lines events from stdin instead of MPRIS")
	_ = fs.Parse(args)

	a, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := a.openSource(*stdin)
	if err != nil {
		return err
	}
	defer src.Close()

	eng := a.start(ctx)
	defer eng.Close()

	a.logger.Info("scrobd running", "version", version)
	err = eng.Run(ctx, src)
	if errors.Is(err, context.Canceled) {
		a.logger.Info("shutting down")
		return nil
	}
	return err
}

func runReplay(args []string) error {
	fs, cfgPath := newFlagSet("replay")
	linger := fs.Duration("linger", 0, "keep running after the last event so scrobble timers can fire")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fail(errmsg.OpReplay, errors.New("usage: scrobd replay [-linger 5m] <events.jsonl>"))
	}
	path := fs.Arg(0)

	a, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := os.Open(path)
	if err != nil {
		return failWith(errmsg.OpReplay, path, err)
	}
	src := playback.NewLineSource(f, a.logger)
	defer src.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := a.start(ctx)
	defer eng.Close()

	if err := eng.Run(ctx, src); err != nil && !errors.Is(err, context.Canceled) {
		return failWith(errmsg.OpReplay, path, err)
	}

	if *linger > 0 {
		select {
		case <-time.After(*linger):
		case <-ctx.Done():
		}
	}
	return nil
}
