package app

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
)

// KeyMap holds every binding the router understands. It satisfies
// help.KeyMap so the status bar can render it with bubbles/help.
type KeyMap struct {
	Up         key.Binding
	Down       key.Binding
	NextFilter key.Binding
	Filter1    key.Binding
	Filter2    key.Binding
	Filter3    key.Binding
	Filter4    key.Binding
	Filter5    key.Binding
	Pause      key.Binding
	Add        key.Binding
	Delete     key.Binding
	Refresh    key.Binding
	Dismiss    key.Binding
	Help       key.Binding
	Quit       key.Binding
	ForceQuit  key.Binding

	// Dialogs
	Confirm    key.Binding
	Cancel     key.Binding
	Yes        key.Binding
	No         key.Binding
	ChooseYes  key.Binding
	ChooseNo   key.Binding
	Toggle     key.Binding
	SelectAll  key.Binding
	SelectNone key.Binding
	PageUp     key.Binding
	PageDown   key.Binding
	Top        key.Binding
	Bottom     key.Binding
	CloseHelp  key.Binding
}

// DefaultKeyMap returns the standard bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		NextFilter: key.NewBinding(key.WithKeys("f", "tab"), key.WithHelp("f/tab", "next filter")),
		Filter1:    filterBinding("1", FilterAll),
		Filter2:    filterBinding("2", FilterDownloading),
		Filter3:    filterBinding("3", FilterSeeding),
		Filter4:    filterBinding("4", FilterPaused),
		Filter5:    filterBinding("5", FilterError),
		Pause:      key.NewBinding(key.WithKeys("p", " "), key.WithHelp("p/space", "pause/resume")),
		Add:        key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add torrent")),
		Delete:     key.NewBinding(key.WithKeys("d", "delete"), key.WithHelp("d", "delete")),
		Refresh:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Dismiss:    key.NewBinding(key.WithKeys("x", "esc"), key.WithHelp("x", "dismiss message")),
		Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:       key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
		ForceQuit:  key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit now")),

		Confirm:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "confirm")),
		Cancel:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Yes:        key.NewBinding(key.WithKeys("y", "Y"), key.WithHelp("y", "yes")),
		No:         key.NewBinding(key.WithKeys("n", "N"), key.WithHelp("n", "no")),
		ChooseYes:  key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "yes")),
		ChooseNo:   key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "no")),
		Toggle:     key.NewBinding(key.WithKeys(" ", "x"), key.WithHelp("space", "toggle file")),
		SelectAll:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "all files")),
		SelectNone: key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "no files")),
		PageUp:     key.NewBinding(key.WithKeys("pgup", "ctrl+u"), key.WithHelp("pgup", "page up")),
		PageDown:   key.NewBinding(key.WithKeys("pgdown", "ctrl+d"), key.WithHelp("pgdn", "page down")),
		Top:        key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("g/home", "top")),
		Bottom:     key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("G/end", "bottom")),
		CloseHelp:  key.NewBinding(key.WithKeys("?", "x", "esc"), key.WithHelp("?/x/esc", "close")),
	}
}

func filterBinding(k string, f Filter) key.Binding {
	return key.NewBinding(key.WithKeys(k), key.WithHelp(k, fmt.Sprintf("show %s", f)))
}

// filterKeys maps the direct filter bindings to their filters.
func (k KeyMap) filterKeys() []struct {
	binding key.Binding
	filter  Filter
} {
	return []struct {
		binding key.Binding
		filter  Filter
	}{
		{k.Filter1, FilterAll},
		{k.Filter2, FilterDownloading},
		{k.Filter3, FilterSeeding},
		{k.Filter4, FilterPaused},
		{k.Filter5, FilterError},
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Add, k.Pause, k.Delete, k.NextFilter, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.NextFilter, k.Filter1, k.Filter2, k.Filter3, k.Filter4, k.Filter5},
		{k.Add, k.Pause, k.Delete, k.Refresh, k.Dismiss},
		{k.Help, k.Quit, k.ForceQuit},
	}
}

var helpSections = []string{"Selection", "Actions", "Exit"}

// HelpLines renders the full key reference as plain text lines.
func (k KeyMap) HelpLines() []string {
	var lines []string
	for i, group := range k.FullHelp() {
		if i > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, helpSections[i])
		for _, b := range group {
			h := b.Help()
			lines = append(lines, fmt.Sprintf("  %-10s %s", h.Key, h.Desc))
		}
	}

	lines = append(lines,
		"",
		"Add dialog",
		fmt.Sprintf("  %-10s %s", "enter", "resolve source / accept directory / add"),
		fmt.Sprintf("  %-10s %s", "space", "toggle file"),
		fmt.Sprintf("  %-10s %s", "a / n", "select all / none"),
		fmt.Sprintf("  %-10s %s", "esc", "cancel"),
		"",
		"Confirm dialog",
		fmt.Sprintf("  %-10s %s", "←/→ h/l", "choose"),
		fmt.Sprintf("  %-10s %s", "y / n", "yes / no"),
		fmt.Sprintf("  %-10s %s", "enter", "confirm"),
		"",
		"Help",
		fmt.Sprintf("  %-10s %s", "j/k", "scroll"),
		fmt.Sprintf("  %-10s %s", "pgup/pgdn", "page"),
		fmt.Sprintf("  %-10s %s", "g / G", "top / bottom"),
		fmt.Sprintf("  %-10s %s", "?/x/esc", "close"),
	)
	return lines
}
