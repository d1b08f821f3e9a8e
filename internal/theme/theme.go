// Package theme derives the UI palette from the user's terminal config.
// Omarchy, Alacritty, Kitty and Foot configs are read in that order, and
// TORRENT_DECK_* environment variables override individual colors.
package theme

import "github.com/charmbracelet/lipgloss"

// Palette holds the color scheme for the TUI
type Palette struct {
	BG       string // background
	FG       string // foreground (primary text)
	Muted    string // secondary info, borders
	Accent   string // progress bars, highlights
	AccentBg string // selection background
	Error    string
	Good     string // seeding, completed
	Warn     string // paused, initializing
}

// DefaultPalette returns the fallback amber-on-dark theme
func DefaultPalette() Palette {
	return Palette{
		BG:       "#0a0a0a",
		FG:       "#d4a017",
		Muted:    "#6b6b4f",
		Accent:   "#8bc34a",
		AccentBg: "#1a1a14",
		Error:    "#ff6b6b",
		Good:     "#8bc34a",
		Warn:     "#ffb347",
	}
}

// Styles holds all lipgloss styles derived from a palette
type Styles struct {
	Title          lipgloss.Style
	Muted          lipgloss.Style
	Error          lipgloss.Style
	Info           lipgloss.Style
	TableHeader    lipgloss.Style
	TableRow       lipgloss.Style
	TableSelected  lipgloss.Style
	FilterActive   lipgloss.Style
	FilterInactive lipgloss.Style
	HelpKey        lipgloss.Style
	HelpDesc       lipgloss.Style
	Modal          lipgloss.Style
	ModalTitle     lipgloss.Style
	Button         lipgloss.Style
	ButtonActive   lipgloss.Style
	Input          lipgloss.Style

	// Per-state row badges
	Downloading  lipgloss.Style
	Seeding      lipgloss.Style
	Paused       lipgloss.Style
	Failed       lipgloss.Style
	Initializing lipgloss.Style
}

// NewStyles creates styles from a palette
func NewStyles(p Palette) Styles {
	fg := lipgloss.Color(p.FG)
	muted := lipgloss.Color(p.Muted)

	return Styles{
		Title: lipgloss.NewStyle().Foreground(fg).Bold(true),
		Muted: lipgloss.NewStyle().Foreground(muted),
		Error: lipgloss.NewStyle().Foreground(lipgloss.Color(p.Error)),
		Info:  lipgloss.NewStyle().Foreground(lipgloss.Color(p.Good)),

		TableHeader: lipgloss.NewStyle().
			Foreground(muted).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(muted),
		TableRow: lipgloss.NewStyle().Foreground(fg),
		TableSelected: lipgloss.NewStyle().
			Foreground(fg).
			Background(lipgloss.Color(p.AccentBg)).
			Bold(true),

		FilterActive:   lipgloss.NewStyle().Foreground(fg).Bold(true).Underline(true),
		FilterInactive: lipgloss.NewStyle().Foreground(muted),

		HelpKey:  lipgloss.NewStyle().Foreground(muted),
		HelpDesc: lipgloss.NewStyle().Foreground(fg),

		Modal: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(p.Accent)).
			Background(lipgloss.Color(p.BG)).
			Padding(1, 3),
		ModalTitle: lipgloss.NewStyle().Foreground(fg).Bold(true),
		Button: lipgloss.NewStyle().
			Foreground(muted).
			Padding(0, 2),
		ButtonActive: lipgloss.NewStyle().
			Foreground(lipgloss.Color(p.BG)).
			Background(lipgloss.Color(p.Accent)).
			Bold(true).
			Padding(0, 2),
		Input: lipgloss.NewStyle().Foreground(fg),

		Downloading:  lipgloss.NewStyle().Foreground(lipgloss.Color(p.Accent)),
		Seeding:      lipgloss.NewStyle().Foreground(lipgloss.Color(p.Good)),
		Paused:       lipgloss.NewStyle().Foreground(lipgloss.Color(p.Warn)),
		Failed:       lipgloss.NewStyle().Foreground(lipgloss.Color(p.Error)).Bold(true),
		Initializing: lipgloss.NewStyle().Foreground(muted).Italic(true),
	}
}

// Current holds the active palette and styles. Only the UI goroutine
// reads or replaces them.
var (
	Current        Styles
	CurrentPalette Palette
)

func init() {
	Refresh()
}

// Refresh reloads the theme from terminal config files
func Refresh() {
	CurrentPalette = Detect()
	Current = NewStyles(CurrentPalette)
}
