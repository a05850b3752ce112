package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/llehouerou/scrobd/internal/api"
	"github.com/llehouerou/scrobd/internal/errmsg"
	"github.com/llehouerou/scrobd/internal/icons"
	"github.com/llehouerou/scrobd/internal/lastfm"
	"github.com/llehouerou/scrobd/internal/state"
)

const commandTimeout = 30 * time.Second

func runLog(args []string) error {
	fset, cfgPath := newFlagSet("log")
	limit := fset.Int("n", 50, "number of entries to show")
	failed := fset.Bool("failed", false, "show only failed scrobbles")
	_ = fset.Parse(args)

	a, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()

	var entries []state.LogEntry
	if *failed {
		entries, err = a.store.Failed()
	} else {
		entries, err = a.store.Recent(*limit)
	}
	if err != nil {
		return fail(errmsg.OpLogLoad, err)
	}
	if len(entries) == 0 {
		fmt.Println("No listens yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tSTATUS\tTRACK\tSOURCE\tLENGTH")
	for _, e := range entries {
		track := e.Artist + " - " + e.Title
		if e.Album != "" {
			track += " [" + e.Album + "]"
		}
		length := "-"
		if e.Duration > 0 {
			length = fmt.Sprintf("%d:%02d", e.Duration/60, e.Duration%60)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", humanize.Time(e.Date), icons.Status(e.Status()), track, e.Source, length)
		if e.ErrorMessage != "" {
			fmt.Fprintf(w, "\t\t  %s\t\t\n", e.ErrorMessage)
		}
	}
	return w.Flush()
}

// apiClient returns a client for the running daemon's control API.
func apiClient(cfgPath string) (*api.Client, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, failWith(errmsg.OpConfigLoad, cfgPath, err)
	}
	if !cfg.HasAPIConfig() {
		return nil, errors.New("the control API is disabled; set api.listen in the config and restart scrobd")
	}
	return api.NewClient(cfg.API.Listen), nil
}

func runNow(args []string) error {
	fset, cfgPath := newFlagSet("now")
	_ = fset.Parse(args)

	client, err := apiClient(*cfgPath)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	np, ok, err := client.NowPlaying(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Nothing is playing.")
		return nil
	}
	fmt.Printf("%s %s - %s\n", icons.Playback(np.State), np.Artist, icons.FormatTitle(np.Title, np.Favorites.Loved))
	if np.Album != "" {
		fmt.Printf("  album:   %s\n", np.Album)
	}
	fmt.Printf("  source:  %s\n", np.Source)
	fmt.Printf("  started: %s\n", humanize.Time(np.StartedAt))
	return nil
}

func runLove(args []string) error {
	fset, cfgPath := newFlagSet("love")
	_ = fset.Parse(args)

	var loved *bool
	switch fset.Arg(0) {
	case "":
	case "on", "yes", "true":
		v := true
		loved = &v
	case "off", "no", "false":
		v := false
		loved = &v
	default:
		return fmt.Errorf("usage: scrobd love [on|off]")
	}

	client, err := apiClient(*cfgPath)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	fav, err := client.Love(ctx, loved)
	if err != nil {
		return fail(errmsg.OpFavoriteToggle, err)
	}
	if fav.Loved {
		fmt.Println(icons.Favorite(), "Loved.")
	} else {
		fmt.Println("Unloved.")
	}
	return nil
}

func runLastfm(args []string) error {
	fset, cfgPath := newFlagSet("lastfm")
	manual := fset.Bool("manual", false, "confirm in the terminal instead of using the callback server")
	_ = fset.Parse(args)

	a, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()

	switch fset.Arg(0) {
	case "link":
		if !a.cfg.HasLastfmConfig() {
			return fail(errmsg.OpLastfmLink, errors.New("lastfm.api_key and lastfm.api_secret must be set"))
		}
		client := lastfm.New(a.cfg.Lastfm.APIKey, a.cfg.Lastfm.APISecret, true, a.logger)
		username, sessionKey, err := linkLastfm(client, *manual)
		if err != nil {
			return fail(errmsg.OpLastfmLink, err)
		}
		if err := a.store.SaveAccount(state.ServiceLastfm, username, sessionKey); err != nil {
			return fail(errmsg.OpLastfmLink, err)
		}
		fmt.Printf("Linked Last.fm account %s.\n", username)
	case "unlink":
		if err := a.store.DeleteAccount(state.ServiceLastfm); err != nil {
			return fail(errmsg.OpLastfmUnlink, err)
		}
		fmt.Println("Last.fm account unlinked.")
	case "", "status":
		return printAccount(a.store, state.ServiceLastfm, "Last.fm")
	default:
		return fmt.Errorf("usage: scrobd lastfm [-manual] link|unlink|status")
	}
	return nil
}

func linkLastfm(client *lastfm.Client, manual bool) (username, sessionKey string, err error) {
	if !manual {
		ctx, stop := context.WithTimeout(context.Background(), lastfm.AuthTimeout)
		defer stop()
		fmt.Println("Opening your browser to authorize scrobd on Last.fm...")
		return client.Link(ctx, func(url string) error {
			fmt.Printf("If nothing opens, visit:\n  %s\n", url)
			return lastfm.OpenBrowser(url)
		})
	}

	token, err := client.GetToken()
	if err != nil {
		return "", "", err
	}
	url := client.GetAuthURL(token, "")
	fmt.Printf("Authorize scrobd at:\n  %s\nthen press Enter.\n", url)
	_ = lastfm.OpenBrowser(url)
	if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err != nil {
		return "", "", err
	}
	return client.GetSession(token)
}

func runListenBrainz(args []string) error {
	fset, cfgPath := newFlagSet("listenbrainz")
	_ = fset.Parse(args)

	a, err := setup(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()

	switch fset.Arg(0) {
	case "token":
		token := strings.TrimSpace(fset.Arg(1))
		if token == "" {
			return fmt.Errorf("usage: scrobd listenbrainz token <user token>")
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		username, err := a.clients().listenbrainz.ValidateToken(ctx, token)
		if err != nil {
			return fail(errmsg.OpListenBrainzToken, err)
		}
		if err := a.store.SaveAccount(state.ServiceListenBrainz, username, token); err != nil {
			return fail(errmsg.OpListenBrainzToken, err)
		}
		fmt.Printf("Linked ListenBrainz account %s.\n", username)
	case "unlink":
		if err := a.store.DeleteAccount(state.ServiceListenBrainz); err != nil {
			return fail(errmsg.OpListenBrainzUnlink, err)
		}
		fmt.Println("ListenBrainz account unlinked.")
	case "", "status":
		return printAccount(a.store, state.ServiceListenBrainz, "ListenBrainz")
	default:
		return fmt.Errorf("usage: scrobd listenbrainz token <token>|unlink|status")
	}
	return nil
}

func printAccount(store state.AccountStore, service state.Service, name string) error {
	acct, err := store.GetAccount(service)
	if err != nil {
		return err
	}
	if acct == nil {
		fmt.Printf("%s: not linked\n", name)
		return nil
	}
	fmt.Printf("%s: %s (linked %s)\n", name, acct.Username, humanize.Time(acct.LinkedAt))
	return nil
}

func runCache(args []string) error {
	fset, cfgPath := newFlagSet("cache")
	_ = fset.Parse(args)

	switch fset.Arg(0) {
	case "", "stats":
		return cacheStats(*cfgPath)
	case "clear":
		client, err := apiClient(*cfgPath)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		if err := client.ClearArtwork(ctx); err != nil {
			return fail(errmsg.OpArtworkStats, err)
		}
		fmt.Println("Artwork cache cleared.")
	case "prune":
		a, err := setup(*cfgPath)
		if err != nil {
			return err
		}
		defer a.Close()
		exp, err := a.exporter()
		if err != nil {
			return fail(errmsg.OpArtworkStats, err)
		}
		fmt.Printf("Removed %d stale thumbnails.\n", exp.Prune())
	default:
		return fmt.Errorf("usage: scrobd cache stats|clear|prune")
	}
	return nil
}

func cacheStats(cfgPath string) error {
	a, err := setup(cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if exp, err := a.exporter(); err == nil {
		files, size := dirUsage(exp.Dir())
		fmt.Printf("Thumbnails: %d files, %s in %s\n", files, humanize.IBytes(uint64(size)), exp.Dir()) //nolint:gosec // size is non-negative
	}

	if !a.cfg.HasAPIConfig() {
		fmt.Println("Memory cache: unavailable (api.listen is not set)")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	st, err := api.NewClient(a.cfg.API.Listen).ArtworkStats(ctx)
	if err != nil {
		return fail(errmsg.OpArtworkStats, err)
	}
	artCfg := a.cfg.GetArtworkConfig()
	fmt.Printf("Memory cache: %d/%d images, %s of %s\n",
		st.Images, artCfg.MaxEntries,
		humanize.IBytes(uint64(st.Bytes)), humanize.IBytes(uint64(artCfg.MaxBytes))) //nolint:gosec // sizes are non-negative
	fmt.Printf("  tracks with artwork: %d, known URLs: %d, without artwork: %d\n", st.Keys, st.URLs, st.NotFound)
	return nil
}

func dirUsage(dir string) (files int, size int64) {
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil //nolint:nilerr // unreadable entries are skipped
		}
		if info, err := d.Info(); err == nil {
			files++
			size += info.Size()
		}
		return nil
	})
	return files, size
}
