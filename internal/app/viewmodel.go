package app

import (
	"github.com/charmbracelet/bubbles/textinput"
)

// AddStepKind names the add flow step for rendering.
type AddStepKind int

const (
	StepSource AddStepKind = iota
	StepResolving
	StepDirectory
	StepFiles
	StepSubmitting
)

// AddView is the renderable state of the add flow.
type AddView struct {
	Step AddStepKind
	// Input is the focused text field for StepSource and StepDirectory.
	Input     textinput.Model
	Source    string
	Name      string
	Default   string
	TargetDir string
	Files     []FileChoice
	Cursor    int
	Err       string
}

// ConfirmView is the renderable state of a confirm dialog.
type ConfirmView struct {
	Prompt string
	Yes    bool
}

// HelpView is the visible window of the help overlay.
type HelpView struct {
	Lines  []string
	Offset int
	Total  int
	Height int
}

// ViewModel is everything the renderer needs for one frame.
type ViewModel struct {
	Mode     Mode
	Dialog   DialogKind
	Filter   Filter
	Counts   map[Filter]int
	Rows     []TorrentView
	Selected int
	Notice   *Notice

	Add     *AddView
	Confirm *ConfirmView
	Help    *HelpView

	DownSpeed int64
	UpSpeed   int64
	Fetching  bool
	Width     int
	Height    int
}

// ViewModel snapshots the state for rendering.
func (m Model) ViewModel() ViewModel {
	vm := ViewModel{
		Mode:     m.Mode(),
		Dialog:   DialogNone,
		Filter:   m.filter,
		Counts:   CountByFilter(m.torrents),
		Rows:     m.Visible(),
		Selected: m.selected,
		Notice:   m.notice,
		Fetching: m.fetching,
		Width:    m.width,
		Height:   m.height,
	}
	for _, t := range m.torrents {
		vm.DownSpeed += t.DownSpeed
		vm.UpSpeed += t.UpSpeed
	}

	if m.dialog != nil {
		vm.Dialog = m.dialog.Kind()
	}
	switch d := m.dialog.(type) {
	case AddFlow:
		vm.Add = addView(d)
	case ConfirmDialog:
		vm.Confirm = &ConfirmView{Prompt: d.Prompt, Yes: d.Yes}
	case HelpOverlay:
		vm.Help = &HelpView{
			Lines:  d.Visible(),
			Offset: d.Offset,
			Total:  len(d.Lines),
			Height: d.Height,
		}
	}
	return vm
}

func addView(f AddFlow) *AddView {
	switch s := f.Step.(type) {
	case InputSource:
		return &AddView{Step: StepSource, Input: s.Input}
	case Resolving:
		return &AddView{Step: StepResolving, Source: s.Source}
	case ChooseDirectory:
		return &AddView{
			Step:    StepDirectory,
			Input:   s.Input,
			Source:  s.Source,
			Name:    s.Meta.Name,
			Default: s.Default,
			Files:   choicesFromMeta(s),
			Err:     s.Err,
		}
	case SelectFiles:
		return &AddView{
			Step:      StepFiles,
			Source:    s.Source,
			Name:      s.Meta.Name,
			TargetDir: s.TargetDir,
			Files:     s.Files,
			Cursor:    s.Cursor,
			Err:       s.Err,
		}
	case Submitting:
		return &AddView{
			Step:      StepSubmitting,
			Source:    s.Req.Source,
			Name:      s.Name,
			TargetDir: s.Req.TargetDir,
		}
	}
	return nil
}

func choicesFromMeta(s ChooseDirectory) []FileChoice {
	files := make([]FileChoice, len(s.Meta.Files))
	for i, f := range s.Meta.Files {
		files[i] = FileChoice{Name: f.Name, Size: f.Size, Selected: true}
	}
	return files
}
