package app

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	defaultHelpHeight = 10
	minHelpHeight     = 3
	// rows taken by the modal border, title and footer
	helpChrome = 8
)

// HelpOverlay is the scrollable key reference.
type HelpOverlay struct {
	Lines  []string
	Offset int
	Height int
}

func (HelpOverlay) isDialog() {}

func (HelpOverlay) Kind() DialogKind { return DialogHelp }

// MaxOffset is the last offset that still fills the viewport.
func (h HelpOverlay) MaxOffset() int {
	return max(0, len(h.Lines)-h.Height)
}

// ScrollTo returns h with the offset clamped to [0, MaxOffset].
func (h HelpOverlay) ScrollTo(offset int) HelpOverlay {
	h.Offset = min(max(offset, 0), h.MaxOffset())
	return h
}

// Visible returns the lines inside the viewport.
func (h HelpOverlay) Visible() []string {
	end := min(h.Offset+h.Height, len(h.Lines))
	return h.Lines[h.Offset:end]
}

func (m *Model) helpHeight() int {
	if m.height <= 0 {
		return defaultHelpHeight
	}
	return max(m.height-helpChrome, minHelpHeight)
}

func (m *Model) openHelp() {
	m.enterDialog(HelpOverlay{Lines: m.keys.HelpLines(), Height: m.helpHeight()})
}

func (m *Model) updateHelp(h HelpOverlay, msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.CloseHelp):
		m.exitDialog()
		return nil
	case key.Matches(msg, m.keys.Up):
		h = h.ScrollTo(h.Offset - 1)
	case key.Matches(msg, m.keys.Down):
		h = h.ScrollTo(h.Offset + 1)
	case key.Matches(msg, m.keys.PageUp):
		h = h.ScrollTo(h.Offset - h.Height)
	case key.Matches(msg, m.keys.PageDown):
		h = h.ScrollTo(h.Offset + h.Height)
	case key.Matches(msg, m.keys.Top):
		h = h.ScrollTo(0)
	case key.Matches(msg, m.keys.Bottom):
		h = h.ScrollTo(h.MaxOffset())
	}
	m.dialog = h
	return nil
}
