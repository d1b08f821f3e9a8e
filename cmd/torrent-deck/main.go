// torrent-deck is a terminal control surface for a BitTorrent engine.
// It adds, inspects, filters, pauses, resumes and deletes torrents on
// either the built-in anacrolix engine or a qBittorrent instance.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/litescript/ls-torrent-deck/internal/app"
	"github.com/litescript/ls-torrent-deck/internal/config"
	"github.com/litescript/ls-torrent-deck/internal/engine"
	"github.com/litescript/ls-torrent-deck/internal/engine/embedded"
	"github.com/litescript/ls-torrent-deck/internal/engine/qbit"
	"github.com/litescript/ls-torrent-deck/internal/logging"
	"github.com/litescript/ls-torrent-deck/internal/theme"
	"github.com/litescript/ls-torrent-deck/internal/tui"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "torrent-deck",
		Short: "A terminal control surface for BitTorrent",
		Long: `torrent-deck - add, inspect, filter, pause and delete torrents from
your terminal, on the built-in engine or a qBittorrent Web API.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runTUI,
	}
	flags := rootCmd.PersistentFlags()
	flags.String("config-dir", config.DefaultDir(), "Directory holding config.toml and the log file")
	flags.String("download-dir", "", "Default download directory (overrides downloads.path)")
	flags.String("engine", "", "Engine backend: embedded or qbittorrent (overrides engine.backend)")
	flags.String("log-level", "", "Log level: debug, info, warn, error (overrides log.level)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version, optionally checking for a newer release",
		Args:  cobra.NoArgs,
		RunE:  runVersion,
	}
	versionCmd.Flags().Bool("check", false, "Check GitHub for a newer release")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE:  runConfig,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List torrents in plain text",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	listCmd.Flags().String("filter", "all", "Only list torrents matching: all, downloading, seeding, paused, error")

	rootCmd.AddCommand(versionCmd, configCmd, listCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads config.toml and applies command line overrides.
func loadConfig(cmd *cobra.Command) (string, config.Config, error) {
	dir, _ := cmd.Flags().GetString("config-dir")

	cfg, err := config.Load(dir)
	if err != nil {
		return dir, cfg, fmt.Errorf("loading config: %w", err)
	}

	if v, _ := cmd.Flags().GetString("download-dir"); v != "" {
		cfg.Downloads.Path = engine.ExpandHome(v)
	}
	if v, _ := cmd.Flags().GetString("engine"); v != "" {
		cfg.Engine.Backend = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}

	if err := cfg.Validate(); err != nil {
		return dir, cfg, fmt.Errorf("invalid config: %w", err)
	}
	return dir, cfg, nil
}

// setupLogging sends logs to the log file; the terminal belongs to the UI.
func setupLogging(dir string, cfg config.Config) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()
	closer, err := logging.Setup(logger, config.LogPath(dir, cfg), cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return logger, closer, nil
}

func openEngine(cfg config.Config, logger *logrus.Logger) (engine.Engine, error) {
	log := logging.For(logger, "engine")

	switch cfg.Engine.Backend {
	case config.BackendQBittorrent:
		log.WithField("host", cfg.QBittorrent.Host).Info("using qBittorrent backend")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Engine.RequestTimeout)
		defer cancel()
		return qbit.Connect(ctx, qbit.Options{
			Host:              cfg.QBittorrent.Host,
			Port:              cfg.QBittorrent.Port,
			Username:          cfg.QBittorrent.Username,
			Password:          cfg.QBittorrent.Password,
			RequestsPerSecond: cfg.QBittorrent.RequestsPerSecond,
			Logger:            log,
		})

	default:
		log.WithField("data_dir", cfg.Engine.Embedded.DataDir).Info("using embedded backend")
		return embedded.New(embedded.Options{
			DataDir:       cfg.Engine.Embedded.DataDir,
			ListenPort:    cfg.Engine.Embedded.ListenPort,
			Seed:          cfg.Engine.Embedded.Seed,
			UploadLimit:   cfg.Engine.Embedded.UploadLimit,
			DownloadLimit: cfg.Engine.Embedded.DownloadLimit,
			Logger:        log,
		})
	}
}

func runTUI(cmd *cobra.Command, args []string) error {
	dir, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, logFile, err := setupLogging(dir, cfg)
	if err != nil {
		return err
	}
	defer logFile.Close()

	// The embedded engine's libraries write to stderr, which would corrupt
	// the alt screen.
	if f, ok := logFile.(*os.File); ok {
		restore, err := redirectStderr(f)
		if err != nil {
			logger.WithError(err).Warn("could not redirect stderr")
		}
		defer restore()
	}

	if err := config.EnsureDownloadDir(cfg); err != nil {
		logger.WithError(err).Warn("could not create download directory")
	}

	eng, err := openEngine(cfg, logger)
	if err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			logger.WithError(err).Warn("closing engine")
		}
	}()

	state := app.New(eng, app.OSFS{}, logging.For(logger, "app"), app.Options{
		DefaultDir:         cfg.Downloads.Path,
		RefreshInterval:    cfg.UI.RefreshInterval,
		RequestTimeout:     cfg.Engine.RequestTimeout,
		ResolveTimeout:     cfg.Engine.ResolveTimeout,
		AddTimeout:         cfg.Engine.AddTimeout,
		MaxRefreshFailures: cfg.UI.MaxRefreshFailures,
		CursorBlink:        cfg.UI.CursorBlink,
		NoticeTTL:          cfg.UI.NoticeTTL,
	})
	p := tea.NewProgram(tui.New(state), tea.WithAltScreen())

	home, _ := os.UserHomeDir()
	watcher, err := theme.NewWatcher(theme.WatchDirs(home), logging.For(logger, "theme"), func() {
		p.Send(tui.ThemeChangedMsg{})
	})
	if err != nil {
		logger.WithError(err).Debug("theme watcher disabled")
	} else {
		defer watcher.Stop()
	}

	logger.WithField("backend", cfg.Engine.Backend).Info("starting UI")
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("running UI: %w", err)
	}

	if m, ok := final.(tui.Model); ok {
		if err := m.App().Err(); err != nil {
			logger.WithError(err).Error("exiting: engine unreachable")
			return err
		}
	}
	return nil
}
