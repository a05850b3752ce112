package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/llehouerou/scrobd/internal/engine"
)

// Artwork source names accepted by artwork.source.
const (
	SourceITunes      = "itunes"
	SourceMusicBrainz = "musicbrainz"
)

type Config struct {
	ScrobblePercent int    `koanf:"scrobble_percent"` // 50-100, default 50
	Database        string `koanf:"database"`         // sqlite path, empty means XDG data dir
	Icons           string `koanf:"icons"`            // "nerd", "unicode", or "none" (default)

	// Last.fm scrobbling (enabled when api key and secret are set)
	Lastfm LastfmConfig `koanf:"lastfm"`

	// ListenBrainz scrobbling (token is linked with `scrobd listenbrainz token`)
	ListenBrainz ListenBrainzConfig `koanf:"listenbrainz"`

	Artwork       ArtworkConfig       `koanf:"artwork"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Log           LogConfig           `koanf:"log"`
	Sources       SourcesConfig       `koanf:"sources"`

	// Local control API
	API APIConfig `koanf:"api"`
}

// LastfmConfig holds Last.fm scrobbling configuration.
type LastfmConfig struct {
	Enabled   *bool  `koanf:"enabled"` // default: true
	APIKey    string `koanf:"api_key"`
	APISecret string `koanf:"api_secret"`
}

// ListenBrainzConfig holds ListenBrainz scrobbling configuration.
type ListenBrainzConfig struct {
	Enabled *bool  `koanf:"enabled"`  // default: true
	BaseURL string `koanf:"base_url"` // default: https://api.listenbrainz.org
}

// ArtworkConfig holds artwork resolution settings.
type ArtworkConfig struct {
	Source            string `koanf:"source"`              // "itunes" or "musicbrainz" (primary), default: itunes
	MaxEntries        int    `koanf:"max_entries"`         // default: 100
	MaxBytes          int64  `koanf:"max_bytes"`           // default: 30 MiB
	DownloadTimeoutMs int    `koanf:"download_timeout_ms"` // default: 5000
	ResolveTimeoutMs  int    `koanf:"resolve_timeout_ms"`  // default: 10000
	ThumbnailSize     int    `koanf:"thumbnail_size"`      // default: 64
	ExportDir         string `koanf:"export_dir"`          // empty means XDG cache dir
}

// NotificationsConfig holds desktop notification settings.
type NotificationsConfig struct {
	Enabled   *bool `koanf:"enabled"`    // default: true
	TimeoutMs int   `koanf:"timeout_ms"` // default: 5000
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error (default: info)
	Format string `koanf:"format"` // text or json (default: text)
}

// SourcesConfig selects the playback event sources.
type SourcesConfig struct {
	MPRIS       *bool    `koanf:"mpris"`        // default: true on Linux
	MPRISIgnore []string `koanf:"mpris_ignore"` // player bus-name suffixes to ignore
}

// APIConfig holds the local control API settings.
type APIConfig struct {
	Listen string `koanf:"listen"` // e.g. "127.0.0.1:9848", empty disables the API
}

func Load() (*Config, error) {
	return LoadFiles(getConfigPaths()...)
}

// LoadFiles loads the given TOML files in order; later files override earlier
// ones and missing files are skipped.
func LoadFiles(paths ...string) (*Config, error) {
	k := koanf.New(".")

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	if cfg.Database != "" {
		cfg.Database = expandPath(cfg.Database)
	}
	if cfg.Artwork.ExportDir != "" {
		cfg.Artwork.ExportDir = expandPath(cfg.Artwork.ExportDir)
	}

	cfg.ListenBrainz.BaseURL = strings.TrimSuffix(cfg.ListenBrainz.BaseURL, "/")
	cfg.Artwork.Source = strings.ToLower(strings.TrimSpace(cfg.Artwork.Source))

	return cfg, nil
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. ~/.config/scrobd/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "scrobd", "config.toml"))
	}

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// Scrobble returns the engine settings derived from the configuration.
func (c *Config) Scrobble() engine.Settings {
	s := engine.Settings{ScrobblePercent: c.ScrobblePercent}
	s.ScrobblePercent = s.Percent()
	return s
}

// HasLastfmConfig returns true if Last.fm scrobbling is configured.
func (c *Config) HasLastfmConfig() bool {
	return c.Lastfm.APIKey != "" && c.Lastfm.APISecret != ""
}

// LastfmEnabled reports whether the Last.fm backend should be used.
func (c *Config) LastfmEnabled() bool {
	return c.HasLastfmConfig() && boolOr(c.Lastfm.Enabled, true)
}

// ListenBrainzEnabled reports whether the ListenBrainz backend should be used.
func (c *Config) ListenBrainzEnabled() bool {
	return boolOr(c.ListenBrainz.Enabled, true)
}

// NotificationsEnabled reports whether desktop notifications are sent.
func (c *Config) NotificationsEnabled() bool {
	return boolOr(c.Notifications.Enabled, true)
}

// MPRISEnabled reports whether the MPRIS event source should be started.
func (c *Config) MPRISEnabled() bool {
	return boolOr(c.Sources.MPRIS, runtime.GOOS == "linux")
}

// HasAPIConfig returns true if the local control API is configured.
func (c *Config) HasAPIConfig() bool {
	return c.API.Listen != ""
}

// GetListenBrainzConfig returns the ListenBrainz configuration with defaults applied.
func (c *Config) GetListenBrainzConfig() ListenBrainzConfig {
	cfg := c.ListenBrainz
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.listenbrainz.org"
	}
	return cfg
}

// GetArtworkConfig returns the artwork configuration with defaults applied.
func (c *Config) GetArtworkConfig() ArtworkConfig {
	cfg := c.Artwork

	if cfg.Source != SourceMusicBrainz {
		cfg.Source = SourceITunes
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 100
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 30 << 20
	}
	if cfg.DownloadTimeoutMs <= 0 {
		cfg.DownloadTimeoutMs = 5000
	}
	if cfg.ResolveTimeoutMs <= 0 {
		cfg.ResolveTimeoutMs = 10000
	}
	if cfg.ThumbnailSize <= 0 || cfg.ThumbnailSize > 512 {
		cfg.ThumbnailSize = 64
	}

	return cfg
}

// DownloadTimeout returns the per-image download timeout.
func (a ArtworkConfig) DownloadTimeout() time.Duration {
	return time.Duration(a.DownloadTimeoutMs) * time.Millisecond
}

// ResolveTimeout returns the whole-resolution timeout.
func (a ArtworkConfig) ResolveTimeout() time.Duration {
	return time.Duration(a.ResolveTimeoutMs) * time.Millisecond
}

// GetNotificationsConfig returns the notification configuration with defaults applied.
func (c *Config) GetNotificationsConfig() NotificationsConfig {
	cfg := c.Notifications
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = 5000
	}
	return cfg
}

// GetLogConfig returns the logging configuration with defaults applied.
func (c *Config) GetLogConfig() LogConfig {
	cfg := c.Log

	cfg.Level = strings.ToLower(cfg.Level)
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		cfg.Level = "info"
	}

	cfg.Format = strings.ToLower(cfg.Format)
	if cfg.Format != "json" {
		cfg.Format = "text"
	}

	return cfg
}
