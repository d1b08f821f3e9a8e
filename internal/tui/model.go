// Package tui draws the application state with Bubble Tea and lipgloss.
// All behavior lives in internal/app; this package turns its ViewModel into
// a frame and drives the spinner and theme reloads.
package tui

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/litescript/ls-torrent-deck/internal/app"
	"github.com/litescript/ls-torrent-deck/internal/theme"
)

// ThemeChangedMsg tells the UI that a terminal config file changed.
type ThemeChangedMsg struct{}

const progressWidth = 14

// Model is the tea.Model run by the program.
type Model struct {
	app      app.Model
	initCmd  tea.Cmd
	spinner  spinner.Model
	bar      progress.Model
	help     help.Model
	spinning bool
}

// New wraps the state machine. It issues the first refresh right away so
// the in-flight guard is set on the model the program will own.
func New(a app.Model) Model {
	cmd := a.Init()
	m := Model{
		app:     a,
		initCmd: cmd,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		help:    help.New(),
	}
	m.applyTheme()
	return m
}

func (m *Model) applyTheme() {
	styles := theme.Current
	m.spinner.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(theme.CurrentPalette.Accent))
	m.bar = progress.New(
		progress.WithGradient(theme.CurrentPalette.Muted, theme.CurrentPalette.Accent),
		progress.WithoutPercentage(),
		progress.WithWidth(progressWidth),
	)
	m.help.Styles.ShortKey = styles.HelpKey
	m.help.Styles.ShortDesc = styles.HelpDesc
	m.help.Styles.ShortSeparator = styles.Muted
}

// App exposes the wrapped state machine, mainly for the final error.
func (m Model) App() app.Model {
	return m.app
}

// Init starts refreshing.
func (m Model) Init() tea.Cmd {
	return m.initCmd
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case ThemeChangedMsg:
		theme.Refresh()
		m.applyTheme()
		return m, nil

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case spinner.TickMsg:
		if !m.busy() {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.app, cmd = m.app.Update(msg)
	cmds = append(cmds, cmd)

	if m.busy() && !m.spinning {
		m.spinning = true
		cmds = append(cmds, m.spinner.Tick)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) busy() bool {
	return m.app.Waiting()
}

// View renders the current frame
func (m Model) View() string {
	if m.app.Quitting() {
		return ""
	}
	vm := m.app.ViewModel()

	base := m.renderMain(vm)
	switch {
	case vm.Add != nil:
		return m.overlayModal(vm, base, m.renderAdd(vm))
	case vm.Confirm != nil:
		return m.overlayModal(vm, base, m.renderConfirm(vm.Confirm))
	case vm.Help != nil:
		return m.overlayModal(vm, base, m.renderHelp(vm.Help))
	}
	return base
}
