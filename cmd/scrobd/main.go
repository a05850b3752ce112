// Command scrobd watches media players and scrobbles what they play to
// Last.fm and ListenBrainz.
package main

import (
	"fmt"
	"os"
)

var version = "0.1.0"

const usage = `scrobd - now playing and scrobbling daemon

Usage: scrobd <command> [options]

Commands:
  run                       Watch players and scrobble (default)
  replay <file>             Feed JSON-lines playback events through the engine
  log                       Show the scrobble log
  now                       Show the track playing in a running daemon
  love [on|off]             Love, unlove or toggle the current track
  lastfm link|unlink        Link or unlink a Last.fm account
  listenbrainz token|unlink Save or remove a ListenBrainz user token
  cache stats|clear|prune   Inspect or clear the artwork cache
  version                   Print version and exit

Every command accepts -config <path> to read a single config file instead of
~/.config/scrobd/config.toml and ./config.toml.

Examples:
  scrobd run
  scrobd log -n 20 -failed
  scrobd lastfm link
  scrobd listenbrainz token 0123abcd-...
  mpris-dump | scrobd run -stdin
`

type command func(args []string) error

var commands = map[string]command{
	"run":          runDaemon,
	"replay":       runReplay,
	"log":          runLog,
	"now":          runNow,
	"love":         runLove,
	"lastfm":       runLastfm,
	"listenbrainz": runListenBrainz,
	"cache":        runCache,
}

func main() {
	args := os.Args[1:]
	name := "run"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		name, args = args[0], args[1:]
	}

	switch name {
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "version":
		fmt.Println("scrobd", version)
		return
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", name, usage)
		os.Exit(2)
	}
	if err := cmd(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
