// Package config handles application configuration via TOML files.
// Configuration is stored at ~/.config/torrent-deck/config.toml and includes
// settings for the torrent engine, downloads, the UI and logging.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

// FileName is the config file inside the config directory.
const FileName = "config.toml"

// DirEnv overrides the config directory.
const DirEnv = "TORRENT_DECK_CONFIG_DIR"

// Engine backends
const (
	BackendEmbedded    = "embedded"
	BackendQBittorrent = "qbittorrent"
)

// Config holds application configuration
type Config struct {
	Engine      EngineConfig      `toml:"engine"`
	QBittorrent QBittorrentConfig `toml:"qbittorrent"`
	Downloads   DownloadsConfig   `toml:"downloads"`
	UI          UIConfig          `toml:"ui"`
	Log         LogConfig         `toml:"log"`
}

// EngineConfig selects and tunes the torrent engine
type EngineConfig struct {
	Backend string `toml:"backend"`

	// RequestTimeout bounds list, pause, resume, delete and add calls.
	RequestTimeout time.Duration `toml:"request_timeout"`

	// ResolveTimeout bounds metadata resolution. Magnets may need a while
	// to find peers.
	ResolveTimeout time.Duration `toml:"resolve_timeout"`

	// AddTimeout bounds an add, which may fetch a magnet's metadata again.
	AddTimeout time.Duration `toml:"add_timeout"`

	Embedded EmbeddedConfig `toml:"embedded"`
}

// EmbeddedConfig holds settings for the built-in anacrolix engine
type EmbeddedConfig struct {
	DataDir    string `toml:"data_dir"`
	ListenPort int    `toml:"listen_port"`
	Seed       bool   `toml:"seed"`
	// Rate limits in KiB/s, 0 means unlimited
	UploadLimit   int `toml:"upload_limit"`
	DownloadLimit int `toml:"download_limit"`
}

// QBittorrentConfig holds qBittorrent Web API settings
type QBittorrentConfig struct {
	Host              string  `toml:"host"`
	Port              int     `toml:"port"`
	Username          string  `toml:"username"`
	Password          string  `toml:"password"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// DownloadsConfig holds download settings
type DownloadsConfig struct {
	// Path is the default base directory offered by the add dialog.
	Path string `toml:"path"`
}

// UIConfig holds terminal UI settings
type UIConfig struct {
	RefreshInterval time.Duration `toml:"refresh_interval"`

	// MaxRefreshFailures is how many consecutive refreshes may fail with the
	// engine unreachable before the application exits.
	MaxRefreshFailures int  `toml:"max_refresh_failures"`
	CursorBlink        bool `toml:"cursor_blink"`

	// NoticeTTL is how long info messages stay in the status line.
	// Zero keeps them until dismissed.
	NoticeTTL time.Duration `toml:"notice_ttl"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `toml:"level"`
	// File defaults to torrent-deck.log in the config directory
	File string `toml:"file"`
}

// Default returns the default configuration
func Default() Config {
	home, _ := os.UserHomeDir()

	return Config{
		Engine: EngineConfig{
			Backend:        BackendEmbedded,
			RequestTimeout: 10 * time.Second,
			ResolveTimeout: 2 * time.Minute,
			AddTimeout:     2 * time.Minute,
			Embedded: EmbeddedConfig{
				DataDir:    filepath.Join(home, ".local", "share", "torrent-deck"),
				ListenPort: 42069,
				Seed:       true,
			},
		},
		QBittorrent: QBittorrentConfig{
			Host:              "localhost",
			Port:              8080,
			Username:          "admin",
			Password:          "adminadmin",
			RequestsPerSecond: 10,
		},
		Downloads: DownloadsConfig{
			Path: filepath.Join(home, "Downloads", "torrents"),
		},
		UI: UIConfig{
			RefreshInterval:    2 * time.Second,
			MaxRefreshFailures: 5,
			CursorBlink:        true,
			NoticeTTL:          5 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultDir returns the config directory, honoring TORRENT_DECK_CONFIG_DIR
func DefaultDir() string {
	if dir := os.Getenv(DirEnv); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "torrent-deck")
}

// ConfigPath returns the path to the config file in dir
func ConfigPath(dir string) string {
	return filepath.Join(dir, FileName)
}

// LogPath returns the log file location for cfg
func LogPath(dir string, cfg Config) string {
	if cfg.Log.File != "" {
		return expandHome(cfg.Log.File)
	}
	return filepath.Join(dir, "torrent-deck.log")
}

// Load reads config from dir or returns defaults
func Load(dir string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(ConfigPath(dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// No config file, return defaults
			return cfg, nil
		}
		return cfg, err
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("parsing %s: %w", ConfigPath(dir), err)
	}

	cfg.Downloads.Path = expandHome(cfg.Downloads.Path)
	cfg.Engine.Embedded.DataDir = expandHome(cfg.Engine.Embedded.DataDir)
	return cfg, nil
}

// Save writes config to dir
func Save(dir string, cfg Config) error {
	// Ensure directory exists
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f, err := os.Create(ConfigPath(dir))
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// Validate reports the first setting that cannot work
func (c Config) Validate() error {
	switch c.Engine.Backend {
	case BackendEmbedded, BackendQBittorrent:
	default:
		return fmt.Errorf("engine.backend must be %q or %q, got %q", BackendEmbedded, BackendQBittorrent, c.Engine.Backend)
	}
	if c.Engine.RequestTimeout <= 0 || c.Engine.ResolveTimeout <= 0 || c.Engine.AddTimeout <= 0 {
		return errors.New("engine timeouts must be positive")
	}
	if c.Engine.Embedded.ListenPort < 0 || c.Engine.Embedded.ListenPort > 65535 {
		return fmt.Errorf("engine.embedded.listen_port out of range: %d", c.Engine.Embedded.ListenPort)
	}
	if c.Engine.Embedded.UploadLimit < 0 || c.Engine.Embedded.DownloadLimit < 0 {
		return errors.New("engine.embedded rate limits must not be negative")
	}
	if c.Engine.Backend == BackendQBittorrent {
		if c.QBittorrent.Host == "" {
			return errors.New("qbittorrent.host is required")
		}
		if c.QBittorrent.Port <= 0 || c.QBittorrent.Port > 65535 {
			return fmt.Errorf("qbittorrent.port out of range: %d", c.QBittorrent.Port)
		}
	}
	if strings.TrimSpace(c.Downloads.Path) == "" {
		return errors.New("downloads.path is required")
	}
	if c.UI.RefreshInterval < 100*time.Millisecond {
		return fmt.Errorf("ui.refresh_interval too short: %s", c.UI.RefreshInterval)
	}
	if c.UI.NoticeTTL < 0 {
		return errors.New("ui.notice_ttl must not be negative")
	}
	if c.UI.MaxRefreshFailures < 1 {
		return errors.New("ui.max_refresh_failures must be at least 1")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// EnsureDownloadDir creates the download directory if it doesn't exist
func EnsureDownloadDir(cfg Config) error {
	return os.MkdirAll(cfg.Downloads.Path, 0755)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
