package app

// DialogKind names the modal currently on screen.
type DialogKind int

const (
	DialogNone DialogKind = iota
	DialogAdd
	DialogDirectoryPick
	DialogFileSelect
	DialogConfirm
	DialogHelp
)

func (k DialogKind) String() string {
	switch k {
	case DialogAdd:
		return "add"
	case DialogDirectoryPick:
		return "directory"
	case DialogFileSelect:
		return "files"
	case DialogConfirm:
		return "confirm"
	case DialogHelp:
		return "help"
	default:
		return "none"
	}
}

// Dialog is the single modal slot. The set of implementations is closed:
// AddFlow, ConfirmDialog and HelpOverlay.
type Dialog interface {
	Kind() DialogKind
	isDialog()
}

// Mode is either Main or a dialog.
type Mode int

const (
	ModeMain Mode = iota
	ModeDialog
)

func (m Mode) String() string {
	if m == ModeDialog {
		return "dialog"
	}
	return "main"
}

// Mode reports whether a dialog is open.
func (m Model) Mode() Mode {
	if m.dialog == nil {
		return ModeMain
	}
	return ModeDialog
}

// Dialog returns the open dialog, or nil in Main mode.
func (m Model) Dialog() Dialog {
	return m.dialog
}

// enterDialog opens d unless a dialog is already open.
func (m *Model) enterDialog(d Dialog) bool {
	if m.dialog != nil {
		return false
	}
	m.dialog = d
	m.log.WithField("dialog", d.Kind()).Debug("dialog opened")
	return true
}

// exitDialog drops any dialog state and returns to Main. Safe in any mode.
func (m *Model) exitDialog() {
	if m.dialog == nil {
		return
	}
	m.log.WithField("dialog", m.dialog.Kind()).Debug("dialog closed")
	m.dialog = nil
}
