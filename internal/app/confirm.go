package app

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/litescript/ls-torrent-deck/internal/engine"
)

// Action is what a confirm dialog runs on Yes. Implementations:
// DeleteTorrent and QuitApplication.
type Action interface {
	isAction()
}

// DeleteTorrent removes a torrent and its downloaded data.
type DeleteTorrent struct {
	ID   engine.ID
	Name string
}

// QuitApplication ends the program.
type QuitApplication struct{}

func (DeleteTorrent) isAction()   {}
func (QuitApplication) isAction() {}

// ConfirmDialog is a Yes/No prompt. It starts on No.
type ConfirmDialog struct {
	Prompt string
	OnYes  Action
	Yes    bool
}

func (ConfirmDialog) isDialog() {}

func (ConfirmDialog) Kind() DialogKind { return DialogConfirm }

func (m *Model) requestDelete() {
	t, ok := m.Selected()
	if !ok {
		return
	}
	m.enterDialog(ConfirmDialog{
		Prompt: fmt.Sprintf("Delete %q and its files on disk?", t.DisplayName()),
		OnYes:  DeleteTorrent{ID: t.ID, Name: t.DisplayName()},
	})
}

func (m *Model) requestQuit() {
	m.enterDialog(ConfirmDialog{
		Prompt: "Quit torrent-deck?",
		OnYes:  QuitApplication{},
	})
}

func (m *Model) updateConfirm(d ConfirmDialog, msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Cancel), key.Matches(msg, m.keys.No):
		m.exitDialog()
		return nil
	case key.Matches(msg, m.keys.Yes), key.Matches(msg, m.keys.ChooseYes):
		d.Yes = true
	case key.Matches(msg, m.keys.ChooseNo):
		d.Yes = false
	case key.Matches(msg, m.keys.Confirm):
		m.exitDialog()
		if !d.Yes {
			return nil
		}
		return m.dispatch(d.OnYes)
	}
	m.dialog = d
	return nil
}

func (m *Model) dispatch(a Action) tea.Cmd {
	switch a := a.(type) {
	case DeleteTorrent:
		m.log.WithField("id", a.ID).Info("deleting torrent")
		return m.opCmd(opDelete, a.ID, a.Name)
	case QuitApplication:
		m.log.Info("quit confirmed")
		m.quitting = true
		return tea.Quit
	}
	return nil
}
