package app

import (
	"errors"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/litescript/ls-torrent-deck/internal/engine"
)

// Options tunes the state machine.
type Options struct {
	// DefaultDir is offered when the directory prompt is left empty.
	DefaultDir string

	RefreshInterval time.Duration
	RequestTimeout  time.Duration
	ResolveTimeout  time.Duration
	// AddTimeout bounds folder creation plus the engine add, which may have
	// to fetch a magnet's metadata again. Defaults to ResolveTimeout.
	AddTimeout time.Duration

	// MaxRefreshFailures consecutive unreachable refreshes end the program.
	MaxRefreshFailures int

	CursorBlink bool

	// NoticeTTL is how long info notices stay up. Zero keeps them until
	// dismissed. Error notices always stay until dismissed.
	NoticeTTL time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		RefreshInterval:    2 * time.Second,
		RequestTimeout:     10 * time.Second,
		ResolveTimeout:     2 * time.Minute,
		AddTimeout:         2 * time.Minute,
		MaxRefreshFailures: 5,
		CursorBlink:        true,
		NoticeTTL:          5 * time.Second,
	}
}

// NoticeLevel is the severity of a status-line message.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeError
)

// Notice is a transient status-line message.
type Notice struct {
	Level NoticeLevel
	Text  string
}

// Model owns the torrent cache, the selection, the active filter and the
// single dialog slot. All mutation happens in Update on the Bubble Tea
// goroutine.
type Model struct {
	engine engine.Engine
	fs     FS
	log    *logrus.Entry
	opts   Options
	keys   KeyMap

	torrents []TorrentView
	filter   Filter
	selected int

	dialog   Dialog
	nextFlow FlowID

	notice    *Notice
	noticeSeq int

	fetching      bool
	refreshQueued bool
	failures      int
	fatal         error
	quitting      bool

	width  int
	height int
}

// New creates the state machine in Main mode with an empty list.
func New(eng engine.Engine, fsys FS, log *logrus.Entry, opts Options) Model {
	def := DefaultOptions()
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = def.RefreshInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = def.RequestTimeout
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = def.ResolveTimeout
	}
	if opts.AddTimeout <= 0 {
		opts.AddTimeout = opts.ResolveTimeout
	}
	if opts.MaxRefreshFailures <= 0 {
		opts.MaxRefreshFailures = def.MaxRefreshFailures
	}
	if fsys == nil {
		fsys = OSFS{}
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}

	return Model{
		engine:   eng,
		fs:       fsys,
		log:      log,
		opts:     opts,
		keys:     DefaultKeyMap(),
		selected: NoSelection,
	}
}

// Init starts the first refresh and the refresh ticker.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.requestRefresh(), m.tickCmd())
}

// Update applies one message.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		cmd := m.handleKey(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if h, ok := m.dialog.(HelpOverlay); ok {
			h.Height = m.helpHeight()
			m.dialog = h.ScrollTo(h.Offset)
		}
		return m, nil

	case tickMsg:
		cmds := []tea.Cmd{m.tickCmd()}
		if !m.fetching {
			cmds = append(cmds, m.requestRefresh())
		}
		return m, tea.Batch(cmds...)

	case refreshMsg:
		cmd := m.applyRefresh(msg)
		return m, cmd

	case resolveMsg:
		cmd := m.handleResolved(msg)
		return m, cmd

	case addMsg:
		cmd := m.handleAdded(msg)
		return m, cmd

	case opMsg:
		cmd := m.handleOp(msg)
		return m, cmd

	case noticeExpiredMsg:
		if msg.seq == m.noticeSeq {
			m.notice = nil
		}
		return m, nil
	}

	// Cursor blinks and clipboard pastes belong to the focused text field.
	cmd := m.forwardToInput(msg)
	return m, cmd
}

// Err is the fatal error that ended the program, if any.
func (m Model) Err() error {
	return m.fatal
}

// Quitting reports whether the model has asked the program to exit.
func (m Model) Quitting() bool {
	return m.quitting || m.fatal != nil
}

// Keys returns the key bindings.
func (m Model) Keys() KeyMap {
	return m.keys
}

// Torrents returns the cached list in engine order.
func (m Model) Torrents() []TorrentView {
	return m.torrents
}

// Filter returns the active filter.
func (m Model) Filter() Filter {
	return m.filter
}

// SelectedIndex is the selection into the visible list, or NoSelection.
func (m Model) SelectedIndex() int {
	return m.selected
}

// Notice returns the current status-line message.
func (m Model) Notice() *Notice {
	return m.notice
}

// Visible returns the torrents passing the active filter.
func (m Model) Visible() []TorrentView {
	return VisibleList(m.torrents, m.filter)
}

// Selected returns the selected torrent.
func (m Model) Selected() (TorrentView, bool) {
	visible := m.Visible()
	if m.selected < 0 || m.selected >= len(visible) {
		return TorrentView{}, false
	}
	return visible[m.selected], true
}

func (m *Model) selectedID() engine.ID {
	t, ok := m.Selected()
	if !ok {
		return ""
	}
	return t.ID
}

// reselect keeps the torrent id selected if it is still visible, otherwise
// clamps the index into the visible list.
func (m *Model) reselect(id engine.ID) {
	visible := m.Visible()
	if id != "" {
		for i, t := range visible {
			if t.ID == id {
				m.selected = i
				return
			}
		}
	}
	m.selected = ClampSelection(m.selected, len(visible))
}

func (m *Model) hasTorrent(id engine.ID) bool {
	for _, t := range m.torrents {
		if t.ID == id {
			return true
		}
	}
	return false
}

func (m *Model) setFilter(f Filter) {
	if f == m.filter {
		return
	}
	id := m.selectedID()
	m.filter = f
	m.reselect(id)
}

func (m *Model) setNotice(level NoticeLevel, text string) tea.Cmd {
	m.noticeSeq++
	m.notice = &Notice{Level: level, Text: text}
	if level == NoticeError || m.opts.NoticeTTL <= 0 {
		return nil
	}
	seq := m.noticeSeq
	return tea.Tick(m.opts.NoticeTTL, func(time.Time) tea.Msg {
		return noticeExpiredMsg{seq: seq}
	})
}

func (m *Model) applyRefresh(msg refreshMsg) tea.Cmd {
	m.fetching = false

	if msg.err != nil {
		m.log.WithError(msg.err).WithField("failures", m.failures+1).Warn("refresh failed")
		if errors.Is(msg.err, engine.ErrUnreachable) {
			m.failures++
			if m.failures >= m.opts.MaxRefreshFailures {
				m.fatal = fmt.Errorf("giving up after %d failed refreshes: %w", m.failures, msg.err)
				m.log.WithError(m.fatal).Error("engine unreachable")
				return tea.Quit
			}
		}
		return tea.Batch(
			m.setNotice(NoticeError, fmt.Sprintf("Refresh failed: %v", msg.err)),
			m.drainQueuedRefresh(),
		)
	}

	m.failures = 0
	id := m.selectedID()
	m.torrents = viewsFromStatus(msg.list)
	m.reselect(id)
	return m.drainQueuedRefresh()
}

func (m *Model) drainQueuedRefresh() tea.Cmd {
	if !m.refreshQueued {
		return nil
	}
	m.refreshQueued = false
	return m.requestRefresh()
}

// togglePause pauses or resumes the selected torrent. The cache is left alone
// until the next refresh reports the new state.
func (m *Model) togglePause() tea.Cmd {
	t, ok := m.Selected()
	if !ok {
		return nil
	}
	switch t.Status {
	case engine.StateError:
		return m.setNotice(NoticeError, fmt.Sprintf("Cannot pause %s: torrent is in error state", t.DisplayName()))
	case engine.StatePaused:
		return m.opCmd(opResume, t.ID, t.DisplayName())
	default:
		return m.opCmd(opPause, t.ID, t.DisplayName())
	}
}

func (m *Model) handleOp(msg opMsg) tea.Cmd {
	log := m.log.WithField("id", msg.id).WithField("op", msg.op)
	if msg.err != nil {
		log.WithError(msg.err).Warn("engine operation failed")
		return m.setNotice(NoticeError, fmt.Sprintf("Could not %s %s: %v", msg.op, msg.name, msg.err))
	}
	log.Debug("engine operation done")

	if msg.op == opDelete {
		id := m.selectedID()
		kept := m.torrents[:0:0]
		for _, t := range m.torrents {
			if t.ID != msg.id {
				kept = append(kept, t)
			}
		}
		m.torrents = kept
		m.reselect(id)
	}
	return tea.Batch(
		m.setNotice(NoticeInfo, fmt.Sprintf("%s %s", msg.op.past(), msg.name)),
		m.requestRefresh(),
	)
}
