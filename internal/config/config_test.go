package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	data := `
[engine]
backend = "qbittorrent"
request_timeout = "3s"

[qbittorrent]
host = "nas.local"
port = 9090

[downloads]
path = "~/media"

[ui]
refresh_interval = "500ms"
max_refresh_failures = 2
cursor_blink = false
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(data), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	home, _ := os.UserHomeDir()
	assert.Equal(t, BackendQBittorrent, cfg.Engine.Backend)
	assert.Equal(t, 3*time.Second, cfg.Engine.RequestTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Engine.ResolveTimeout, "unset keys keep defaults")
	assert.Equal(t, "nas.local", cfg.QBittorrent.Host)
	assert.Equal(t, 9090, cfg.QBittorrent.Port)
	assert.Equal(t, "admin", cfg.QBittorrent.Username)
	assert.Equal(t, filepath.Join(home, "media"), cfg.Downloads.Path)
	assert.Equal(t, 500*time.Millisecond, cfg.UI.RefreshInterval)
	assert.Equal(t, 2, cfg.UI.MaxRefreshFailures)
	assert.False(t, cfg.UI.CursorBlink)
	assert.NoError(t, cfg.Validate())
}

func TestLoadInvalidToml(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("[engine\nbackend="), 0644))

	cfg, err := Load(dir)
	require.Error(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	cfg := Default()
	cfg.Engine.Backend = BackendQBittorrent
	cfg.UI.RefreshInterval = 5 * time.Second

	require.NoError(t, Save(dir, cfg))
	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"backend":     func(c *Config) { c.Engine.Backend = "transmission" },
		"timeout":     func(c *Config) { c.Engine.RequestTimeout = 0 },
		"add timeout": func(c *Config) { c.Engine.AddTimeout = 0 },
		"notice ttl":  func(c *Config) { c.UI.NoticeTTL = -time.Second },
		"listen port": func(c *Config) { c.Engine.Embedded.ListenPort = 70000 },
		"rate limit":  func(c *Config) { c.Engine.Embedded.DownloadLimit = -1 },
		"downloads":   func(c *Config) { c.Downloads.Path = " " },
		"refresh":     func(c *Config) { c.UI.RefreshInterval = time.Millisecond },
		"failures":    func(c *Config) { c.UI.MaxRefreshFailures = 0 },
		"log level":   func(c *Config) { c.Log.Level = "loud" },
		"qbit port":   func(c *Config) { c.Engine.Backend = BackendQBittorrent; c.QBittorrent.Port = 0 },
		"qbit host":   func(c *Config) { c.Engine.Backend = BackendQBittorrent; c.QBittorrent.Host = "" },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}

func TestDefaultDirHonorsEnv(t *testing.T) {
	t.Setenv(DirEnv, "/tmp/deck-conf")
	assert.Equal(t, "/tmp/deck-conf", DefaultDir())
	assert.Equal(t, "/tmp/deck-conf/config.toml", ConfigPath(DefaultDir()))
}

func TestLogPath(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "/conf/torrent-deck.log", LogPath("/conf", cfg))

	cfg.Log.File = "/var/log/deck.log"
	assert.Equal(t, "/var/log/deck.log", LogPath("/conf", cfg))
}
