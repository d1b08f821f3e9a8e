package app

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// handleKey routes a decoded key or bracketed paste by mode. Pastes only
// reach the two text fields of the add flow; everywhere else they are
// dropped before any binding is matched.
func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if !msg.Paste && key.Matches(msg, m.keys.ForceQuit) {
		m.log.Info("interrupted")
		m.quitting = true
		return tea.Quit
	}

	switch d := m.dialog.(type) {
	case AddFlow:
		return m.updateAdd(d, msg)
	case ConfirmDialog:
		if msg.Paste {
			return nil
		}
		return m.updateConfirm(d, msg)
	case HelpOverlay:
		if msg.Paste {
			return nil
		}
		return m.updateHelp(d, msg)
	}

	if msg.Paste {
		m.log.WithField("bytes", len(string(msg.Runes))).Debug("paste ignored outside text field")
		return nil
	}
	return m.updateMain(msg)
}

func (m *Model) updateMain(msg tea.KeyMsg) tea.Cmd {
	for _, fk := range m.keys.filterKeys() {
		if key.Matches(msg, fk.binding) {
			m.setFilter(fk.filter)
			return nil
		}
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}
	case key.Matches(msg, m.keys.Down):
		if m.selected < len(m.Visible())-1 {
			m.selected++
		}
	case key.Matches(msg, m.keys.NextFilter):
		m.setFilter(m.filter.Next())
	case key.Matches(msg, m.keys.Pause):
		return m.togglePause()
	case key.Matches(msg, m.keys.Add):
		return m.openAdd()
	case key.Matches(msg, m.keys.Delete):
		m.requestDelete()
	case key.Matches(msg, m.keys.Quit):
		m.requestQuit()
	case key.Matches(msg, m.keys.Help):
		m.openHelp()
	case key.Matches(msg, m.keys.Refresh):
		if !m.fetching {
			return m.requestRefresh()
		}
	case key.Matches(msg, m.keys.Dismiss):
		m.notice = nil
	}
	return nil
}

// forwardToInput hands non-key messages (cursor blinks, clipboard pastes) to
// the focused text field, if one is showing.
func (m *Model) forwardToInput(msg tea.Msg) tea.Cmd {
	flow, ok := m.dialog.(AddFlow)
	if !ok {
		return nil
	}

	var cmd tea.Cmd
	switch step := flow.Step.(type) {
	case InputSource:
		step.Input, cmd = step.Input.Update(msg)
		flow.Step = step
	case ChooseDirectory:
		step.Input, cmd = step.Input.Update(msg)
		flow.Step = step
	default:
		return nil
	}
	m.dialog = flow
	return cmd
}
