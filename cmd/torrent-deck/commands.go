package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/litescript/ls-torrent-deck/internal/app"
	"github.com/litescript/ls-torrent-deck/internal/config"
	"github.com/litescript/ls-torrent-deck/internal/version"
)

func runVersion(cmd *cobra.Command, args []string) error {
	fmt.Printf("torrent-deck v%s\n", version.Version)

	check, _ := cmd.Flags().GetBool("check")
	if !check {
		return nil
	}

	info := version.NewChecker().Check(cmd.Context())
	switch {
	case info.Error != nil:
		return fmt.Errorf("checking for updates: %w", info.Error)
	case info.UpdateAvailable:
		fmt.Printf("Update available: v%s\n", info.LatestVersion)
		fmt.Printf("  %s\n", version.InstallCommand())
	default:
		fmt.Println("You are on the latest version.")
	}
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	dir, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	fmt.Printf("# %s\n", config.ConfigPath(dir))
	return toml.NewEncoder(os.Stdout).Encode(cfg)
}

func runList(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("filter")
	filter, err := app.ParseFilter(name)
	if err != nil {
		return err
	}

	dir, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, logFile, err := setupLogging(dir, cfg)
	if err != nil {
		return err
	}
	defer logFile.Close()

	eng, err := openEngine(cfg, logger)
	if err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer eng.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Engine.RequestTimeout)
	defer cancel()
	list, err := eng.ListTorrents(ctx)
	if err != nil {
		return fmt.Errorf("listing torrents: %w", err)
	}

	views := make([]app.TorrentView, 0, len(list))
	for _, s := range list {
		views = append(views, app.NewTorrentView(s))
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tPROGRESS\tDOWN\tUP\tPATH")
	for _, t := range app.VisibleList(views, filter) {
		fmt.Fprintf(w, "%s\t%s\t%.1f%%\t%d\t%d\t%s\n",
			t.DisplayName(), t.Status, t.Progress*100, t.DownSpeed, t.UpSpeed, t.TargetDir)
	}
	return w.Flush()
}
