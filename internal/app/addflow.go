package app

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/litescript/ls-torrent-deck/internal/engine"
)

// FlowID tags every engine request made on behalf of one add flow so late
// results from a cancelled flow can be told apart from the current one.
type FlowID uint64

// AddStep is one step of the add flow. Implementations: InputSource,
// Resolving, ChooseDirectory, SelectFiles and Submitting.
type AddStep interface {
	isAddStep()
}

// InputSource collects the magnet, URL or .torrent path.
type InputSource struct {
	Input textinput.Model
}

// Resolving waits for the engine to return metadata.
type Resolving struct {
	Source string
}

// ChooseDirectory asks for the base directory. An empty input means Default.
type ChooseDirectory struct {
	Source  string
	Meta    engine.Metadata
	Default string
	Input   textinput.Model
	Err     string
}

// FileChoice is one row of the file picker.
type FileChoice struct {
	Name     string
	Size     int64
	Selected bool
}

// SelectFiles lets the user pick which files to download.
type SelectFiles struct {
	Source    string
	Meta      engine.Metadata
	TargetDir string
	Files     []FileChoice
	Cursor    int
	Err       string
}

// Submitting waits for the engine to accept the job.
type Submitting struct {
	Req  engine.AddRequest
	Name string
}

func (InputSource) isAddStep()     {}
func (Resolving) isAddStep()       {}
func (ChooseDirectory) isAddStep() {}
func (SelectFiles) isAddStep()     {}
func (Submitting) isAddStep()      {}

// AddFlow is the add dialog: a flow identity plus exactly one active step.
type AddFlow struct {
	ID   FlowID
	Step AddStep
}

func (AddFlow) isDialog() {}

// Kind maps the active step to the dialog shown for it.
func (f AddFlow) Kind() DialogKind {
	switch f.Step.(type) {
	case ChooseDirectory:
		return DialogDirectoryPick
	case SelectFiles:
		return DialogFileSelect
	default:
		return DialogAdd
	}
}

// Selected returns the chosen file indices in ascending order.
func (s SelectFiles) Selected() []int {
	var only []int
	for i, f := range s.Files {
		if f.Selected {
			only = append(only, i)
		}
	}
	return only
}

// SubfolderName derives the job folder from the torrent name, falling back
// to the first file and then to "download".
func SubfolderName(meta engine.Metadata) string {
	candidates := []string{meta.Name}
	if len(meta.Files) > 0 {
		candidates = append(candidates, meta.Files[0].Name)
	}
	for _, c := range candidates {
		if name := sanitizeComponent(c); name != "" {
			return name
		}
	}
	return "download"
}

// sanitizeComponent turns s into a single path element.
func sanitizeComponent(s string) string {
	s = strings.NewReplacer("/", "-", "\\", "-").Replace(s)
	s = strings.TrimSpace(s)
	if s == "." || s == ".." {
		return ""
	}
	return s
}

func (m *Model) newInput(placeholder string) textinput.Model {
	in := textinput.New()
	in.Placeholder = placeholder
	// Magnets with long tracker lists must not be cut short
	in.CharLimit = 0
	in.Width = 60
	if !m.opts.CursorBlink {
		in.Cursor.SetMode(cursor.CursorStatic)
	}
	return in
}

func (m *Model) openAdd() tea.Cmd {
	if m.dialog != nil {
		return nil
	}
	m.nextFlow++
	in := m.newInput("magnet:?xt=…, https://…, or /path/to/file.torrent")
	cmd := in.Focus()
	m.enterDialog(AddFlow{ID: m.nextFlow, Step: InputSource{Input: in}})
	return cmd
}

// updateAdd routes a key to the active add step.
func (m *Model) updateAdd(flow AddFlow, msg tea.KeyMsg) tea.Cmd {
	switch step := flow.Step.(type) {
	case InputSource:
		return m.updateInputSource(flow, step, msg)
	case ChooseDirectory:
		return m.updateChooseDirectory(flow, step, msg)
	case SelectFiles:
		return m.updateSelectFiles(flow, step, msg)
	default:
		// Resolving and Submitting only honor cancel.
		if !msg.Paste && key.Matches(msg, m.keys.Cancel) {
			m.log.WithField("flow", flow.ID).Debug("add flow cancelled while waiting on engine")
			m.exitDialog()
		}
		return nil
	}
}

func (m *Model) updateInputSource(flow AddFlow, step InputSource, msg tea.KeyMsg) tea.Cmd {
	if !msg.Paste {
		switch {
		case key.Matches(msg, m.keys.Cancel):
			m.exitDialog()
			return nil
		case key.Matches(msg, m.keys.Confirm):
			raw := strings.TrimSpace(step.Input.Value())
			if raw == "" {
				return nil
			}
			flow.Step = Resolving{Source: raw}
			m.dialog = flow
			m.log.WithFields(logrus.Fields{"flow": flow.ID, "source": raw}).Debug("resolving metadata")
			return m.resolveCmd(flow.ID, raw)
		}
	}

	var cmd tea.Cmd
	step.Input, cmd = step.Input.Update(msg)
	flow.Step = step
	m.dialog = flow
	return cmd
}

func (m *Model) updateChooseDirectory(flow AddFlow, step ChooseDirectory, msg tea.KeyMsg) tea.Cmd {
	if !msg.Paste {
		switch {
		case key.Matches(msg, m.keys.Cancel):
			m.exitDialog()
			return nil
		case key.Matches(msg, m.keys.Confirm):
			return m.acceptDirectory(flow, step)
		}
	}

	var cmd tea.Cmd
	step.Input, cmd = step.Input.Update(msg)
	step.Err = ""
	flow.Step = step
	m.dialog = flow
	return cmd
}

// acceptDirectory validates the base directory, computes the job subfolder
// and moves on to file selection.
func (m *Model) acceptDirectory(flow AddFlow, step ChooseDirectory) tea.Cmd {
	base, err := m.baseDirectory(step.Input.Value(), step.Default)
	if err != nil {
		step.Err = err.Error()
		flow.Step = step
		m.dialog = flow
		return nil
	}

	target := filepath.Join(base, SubfolderName(step.Meta))
	log := m.log.WithFields(logrus.Fields{"flow": flow.ID, "target": target})

	if engine.SameDestination(statusesFromViews(m.torrents), step.Meta.InfoHash, base) {
		log.Info("torrent already present in this directory")
		m.exitDialog()
		return m.setNotice(NoticeError, fmt.Sprintf("Torrent already added for %s", base))
	}
	if m.fs.Exists(target) {
		log.Info("target folder already exists")
		m.exitDialog()
		return m.setNotice(NoticeError, fmt.Sprintf("Folder already exists: %s", target))
	}

	files := make([]FileChoice, len(step.Meta.Files))
	for i, f := range step.Meta.Files {
		files[i] = FileChoice{Name: f.Name, Size: f.Size, Selected: true}
	}
	flow.Step = SelectFiles{
		Source:    step.Source,
		Meta:      step.Meta,
		TargetDir: target,
		Files:     files,
	}
	m.dialog = flow
	log.Debug("directory accepted")
	return nil
}

func (m *Model) baseDirectory(raw, def string) (string, error) {
	path := strings.TrimSpace(raw)
	if path == "" {
		path = def
	}
	if path == "" {
		return "", errors.New("enter a download directory")
	}
	abs, err := filepath.Abs(engine.ExpandHome(path))
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	if !m.fs.IsDir(abs) {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

func (m *Model) updateSelectFiles(flow AddFlow, step SelectFiles, msg tea.KeyMsg) tea.Cmd {
	if msg.Paste {
		return nil
	}

	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.exitDialog()
		return nil
	case key.Matches(msg, m.keys.Up):
		if step.Cursor > 0 {
			step.Cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if step.Cursor < len(step.Files)-1 {
			step.Cursor++
		}
	case key.Matches(msg, m.keys.Toggle):
		if step.Cursor >= 0 && step.Cursor < len(step.Files) {
			files := append([]FileChoice(nil), step.Files...)
			files[step.Cursor].Selected = !files[step.Cursor].Selected
			step.Files = files
			step.Err = ""
		}
	case key.Matches(msg, m.keys.SelectAll):
		step.Files = setAll(step.Files, true)
		step.Err = ""
	case key.Matches(msg, m.keys.SelectNone):
		step.Files = setAll(step.Files, false)
	case key.Matches(msg, m.keys.Confirm):
		only := step.Selected()
		if len(only) == 0 {
			step.Err = "Select at least one file"
			break
		}
		req := engine.AddRequest{Source: step.Source, TargetDir: step.TargetDir, OnlyFiles: only}
		flow.Step = Submitting{Req: req, Name: step.Meta.Name}
		m.dialog = flow
		m.log.WithFields(logrus.Fields{
			"flow":   flow.ID,
			"target": req.TargetDir,
			"files":  len(only),
		}).Debug("submitting torrent")
		return m.submitCmd(flow.ID, req)
	}

	flow.Step = step
	m.dialog = flow
	return nil
}

func setAll(files []FileChoice, selected bool) []FileChoice {
	out := make([]FileChoice, len(files))
	for i, f := range files {
		f.Selected = selected
		out[i] = f
	}
	return out
}

// currentFlow returns the open add flow if it is flow id.
func (m *Model) currentFlow(id FlowID) (AddFlow, bool) {
	flow, ok := m.dialog.(AddFlow)
	if !ok || flow.ID != id {
		return AddFlow{}, false
	}
	return flow, true
}

func (m *Model) handleResolved(msg resolveMsg) tea.Cmd {
	flow, ok := m.currentFlow(msg.flow)
	if !ok {
		m.log.WithField("flow", msg.flow).Debug("dropping stale resolve result")
		return nil
	}
	step, ok := flow.Step.(Resolving)
	if !ok {
		return nil
	}

	if msg.err != nil {
		m.log.WithError(msg.err).WithField("source", step.Source).Warn("resolve failed")
		m.exitDialog()
		return m.setNotice(NoticeError, fmt.Sprintf("Could not resolve torrent: %v", msg.err))
	}

	in := m.newInput(m.opts.DefaultDir)
	cmd := in.Focus()
	flow.Step = ChooseDirectory{
		Source:  step.Source,
		Meta:    msg.meta,
		Default: m.opts.DefaultDir,
		Input:   in,
	}
	m.dialog = flow
	m.log.WithFields(logrus.Fields{
		"flow":  flow.ID,
		"name":  msg.meta.Name,
		"files": len(msg.meta.Files),
	}).Debug("metadata resolved")
	return cmd
}

func (m *Model) handleAdded(msg addMsg) tea.Cmd {
	flow, ok := m.currentFlow(msg.flow)
	if !ok {
		m.log.WithField("flow", msg.flow).Debug("dropping stale add result")
		return nil
	}
	step, ok := flow.Step.(Submitting)
	if !ok {
		return nil
	}
	m.exitDialog()

	if msg.err != nil {
		m.log.WithError(msg.err).WithField("target", step.Req.TargetDir).Warn("add failed")
		switch {
		case errors.Is(msg.err, engine.ErrFolderExists):
			return m.setNotice(NoticeError, fmt.Sprintf("Folder already exists: %s", step.Req.TargetDir))
		case errors.Is(msg.err, engine.ErrDuplicatePath):
			return m.setNotice(NoticeError, fmt.Sprintf("Torrent already added for %s", step.Req.BasePath()))
		default:
			return m.setNotice(NoticeError, fmt.Sprintf("Add failed: %v", msg.err))
		}
	}

	view := TorrentView{
		ID:        msg.handle.ID,
		InfoHash:  msg.handle.InfoHash,
		Name:      msg.handle.Name,
		Status:    engine.StateInitializing,
		TargetDir: step.Req.TargetDir,
		BasePath:  step.Req.BasePath(),
	}
	if view.Name == "" {
		view.Name = step.Name
	}
	if !m.hasTorrent(view.ID) {
		selected := m.selectedID()
		m.torrents = append(m.torrents, view)
		m.reselect(selected)
	}
	m.log.WithFields(logrus.Fields{"id": view.ID, "target": view.TargetDir}).Info("torrent added")

	return tea.Batch(
		m.setNotice(NoticeInfo, fmt.Sprintf("Added %s", view.DisplayName())),
		m.requestRefresh(),
	)
}

// Waiting reports whether the add flow is waiting on the engine.
func (m Model) Waiting() bool {
	flow, ok := m.dialog.(AddFlow)
	if !ok {
		return false
	}
	switch flow.Step.(type) {
	case Resolving, Submitting:
		return true
	}
	return false
}
