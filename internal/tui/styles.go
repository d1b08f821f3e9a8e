package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/litescript/ls-torrent-deck/internal/engine"
	"github.com/litescript/ls-torrent-deck/internal/theme"
)

// stateStyle returns the badge style for a torrent state
func stateStyle(s engine.State) lipgloss.Style {
	styles := theme.Current
	switch s {
	case engine.StateDownloading:
		return styles.Downloading
	case engine.StateSeeding:
		return styles.Seeding
	case engine.StatePaused:
		return styles.Paused
	case engine.StateError:
		return styles.Failed
	default:
		return styles.Initializing
	}
}

// truncate shortens s to at most width cells, marking the cut with an ellipsis
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}

// padRight truncates or pads s to exactly width cells
func padRight(s string, width int) string {
	return runewidth.FillRight(truncate(s, width), width)
}

// padLeft truncates or left-pads s to exactly width cells
func padLeft(s string, width int) string {
	return runewidth.FillLeft(truncate(s, width), width)
}

// formatSize formats bytes to human readable size
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatSpeed formats bytes/sec to human readable speed
func formatSpeed(bytesPerSec int64) string {
	if bytesPerSec <= 0 {
		return "-"
	}
	return formatSize(bytesPerSec) + "/s"
}

// gradientColor blends from the palette accent to its foreground across width.
func gradientColor(pos, width int) string {
	if width <= 1 {
		return theme.CurrentPalette.Accent
	}
	t := float64(pos) / float64(width-1)
	return theme.MixColors(theme.CurrentPalette.Accent, theme.CurrentPalette.FG, t)
}

// gradientText renders s with a horizontal accent gradient
func gradientText(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(gradientColor(i, len(runes)))).Bold(true)
		b.WriteString(style.Render(string(r)))
	}
	return b.String()
}
