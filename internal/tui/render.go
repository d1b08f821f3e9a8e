package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/litescript/ls-torrent-deck/internal/app"
	"github.com/litescript/ls-torrent-deck/internal/theme"
	"github.com/litescript/ls-torrent-deck/internal/version"
)

const (
	defaultWidth  = 100
	defaultHeight = 30
	// header (2) + filter bar (2) + table header (2) + status bar (3)
	chromeHeight  = 9
	maxFileRows   = 12
	modalMaxWidth = 76
)

func frameSize(vm app.ViewModel) (int, int) {
	w, h := vm.Width, vm.Height
	if w <= 0 {
		w = defaultWidth
	}
	if h <= 0 {
		h = defaultHeight
	}
	return w, h
}

func (m Model) renderMain(vm app.ViewModel) string {
	width, height := frameSize(vm)

	var b strings.Builder
	b.WriteString(m.renderHeader(vm, width))
	b.WriteString("\n")
	b.WriteString(renderFilterBar(vm))
	b.WriteString("\n\n")
	b.WriteString(m.renderTable(vm, width, max(height-chromeHeight, 1)))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar(vm, width))
	return b.String()
}

func (m Model) renderHeader(vm app.ViewModel, width int) string {
	styles := theme.Current

	left := " " + gradientText("torrent-deck") + styles.Muted.Render(" v"+version.Version)
	right := ""
	if vm.Fetching {
		right = styles.Muted.Render("refreshing ")
	}
	gap := max(width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return left + strings.Repeat(" ", gap) + right + "\n"
}

func renderFilterBar(vm app.ViewModel) string {
	styles := theme.Current

	parts := make([]string, 0, len(app.Filters))
	for i, f := range app.Filters {
		label := fmt.Sprintf("[%d]%s(%d)", i+1, f, vm.Counts[f])
		if f == vm.Filter {
			parts = append(parts, styles.FilterActive.Render(label))
		} else {
			parts = append(parts, styles.FilterInactive.Render(label))
		}
	}
	return " " + strings.Join(parts, "  ")
}

func (m Model) renderTable(vm app.ViewModel, width, height int) string {
	styles := theme.Current
	var b strings.Builder

	const statusW, pctW, speedW = 12, 6, 11
	barW := progressWidth
	nameW := max(width-2-statusW-barW-pctW-2*speedW-5, 16)

	header := "  " + padRight("NAME", nameW) +
		" " + padRight("STATUS", statusW) +
		" " + padRight("PROGRESS", barW+pctW) +
		" " + padLeft("DOWN", speedW) +
		" " + padLeft("UP", speedW)
	b.WriteString(styles.TableHeader.Render(header))
	b.WriteString("\n")

	if len(vm.Rows) == 0 {
		if vm.Filter == app.FilterAll {
			b.WriteString(styles.Muted.Render("  No torrents. Press a to add one."))
		} else {
			b.WriteString(styles.Muted.Render(fmt.Sprintf("  No %s torrents.", strings.ToLower(vm.Filter.String()))))
		}
		return b.String()
	}

	visibleRows := max(height-2, 1)
	start := 0
	if vm.Selected >= visibleRows {
		start = vm.Selected - visibleRows + 1
	}
	end := min(start+visibleRows, len(vm.Rows))

	for i := start; i < end; i++ {
		t := vm.Rows[i]
		status := t.Status.String()
		if t.Err != "" {
			status = "Error"
		}

		row := padRight(t.DisplayName(), nameW) +
			" " + stateStyle(t.Status).Render(padRight(status, statusW)) +
			" " + m.bar.ViewAs(t.Progress) + padLeft(fmt.Sprintf("%.1f%%", t.Progress*100), pctW) +
			" " + padLeft(formatSpeed(t.DownSpeed), speedW) +
			" " + padLeft(formatSpeed(t.UpSpeed), speedW)

		if i == vm.Selected {
			b.WriteString(styles.TableSelected.Render("▸ " + row))
		} else {
			b.WriteString(styles.TableRow.Render("  " + row))
		}
		if i < end-1 {
			b.WriteString("\n")
		}
	}

	if sel := vm.Selected; sel >= 0 && sel < len(vm.Rows) && vm.Rows[sel].Err != "" {
		b.WriteString("\n")
		b.WriteString(styles.Error.Render("  " + truncate(vm.Rows[sel].Err, width-4)))
	}
	return b.String()
}

func (m Model) renderStatusBar(vm app.ViewModel, width int) string {
	styles := theme.Current

	var left string
	if n := vm.Notice; n != nil {
		if n.Level == app.NoticeError {
			left = styles.Error.Render(" " + n.Text)
		} else {
			left = styles.Info.Render(" " + n.Text)
		}
	}

	right := styles.Muted.Render(fmt.Sprintf("↓ %s  ↑ %s ", formatSpeed(vm.DownSpeed), formatSpeed(vm.UpSpeed)))
	leftMax := max(width-lipgloss.Width(right)-1, 0)
	if lipgloss.Width(left) > leftMax {
		left = truncate(left, leftMax)
	}
	gap := max(width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	line1 := left + strings.Repeat(" ", gap) + right

	line2 := " " + m.help.ShortHelpView(m.app.Keys().ShortHelp())
	return "\n" + line1 + "\n" + line2
}

// overlayModal draws modal centered over base, keeping the rest of base visible.
func (m Model) overlayModal(vm app.ViewModel, base, modal string) string {
	width, height := frameSize(vm)

	baseLines := strings.Split(base, "\n")
	modalLines := strings.Split(modal, "\n")

	top := max((height-len(modalLines))/2, 0)
	left := max((width-lipgloss.Width(modal))/2, 0)
	padding := strings.Repeat(" ", left)

	for len(baseLines) < top+len(modalLines) {
		baseLines = append(baseLines, "")
	}
	for i, line := range modalLines {
		baseLines[top+i] = padding + line
	}
	return strings.Join(baseLines, "\n")
}

func modal(title string, body ...string) string {
	styles := theme.Current
	content := styles.ModalTitle.Render(title) + "\n\n" + strings.Join(body, "\n")
	return styles.Modal.MaxWidth(modalMaxWidth).Render(content)
}

func hint(pairs ...string) string {
	styles := theme.Current
	var parts []string
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, styles.HelpDesc.Render("["+pairs[i]+"]")+styles.HelpKey.Render(pairs[i+1]))
	}
	return strings.Join(parts, " ")
}

func (m Model) renderAdd(vm app.ViewModel) string {
	styles := theme.Current
	a := vm.Add
	inner := modalMaxWidth - 10

	var errLine string
	if a.Err != "" {
		errLine = "\n" + styles.Error.Render(truncate(a.Err, inner))
	}

	switch a.Step {
	case app.StepSource:
		return modal("Add torrent",
			styles.Muted.Render("Magnet link, http(s) URL or path to a .torrent file"),
			"",
			a.Input.View(),
			"",
			hint("enter", "continue", "esc", "cancel"),
		)

	case app.StepResolving:
		return modal("Add torrent",
			m.spinner.View()+" Fetching metadata…",
			styles.Muted.Render(truncate(a.Source, inner)),
			"",
			hint("esc", "cancel"),
		)

	case app.StepDirectory:
		var total int64
		for _, f := range a.Files {
			total += f.Size
		}
		return modal("Download directory",
			fmt.Sprintf("%s  %s", styles.Title.Render(truncate(a.Name, inner/2)),
				styles.Muted.Render(fmt.Sprintf("%d files, %s", len(a.Files), formatSize(total)))),
			"",
			a.Input.View()+errLine,
			styles.Muted.Render("Leave empty for "+truncate(a.Default, inner-16)),
			"",
			hint("enter", "continue", "esc", "cancel"),
		)

	case app.StepFiles:
		return modal("Select files",
			styles.Muted.Render("Into "+truncate(a.TargetDir, inner-5)),
			"",
			renderFileList(a, inner),
			errLine,
			hint("space", "toggle", "a", "all", "n", "none", "enter", "add", "esc", "cancel"),
		)

	case app.StepSubmitting:
		return modal("Add torrent",
			m.spinner.View()+" Adding "+truncate(a.Name, inner-10)+"…",
			styles.Muted.Render(truncate(a.TargetDir, inner)),
			"",
			hint("esc", "close"),
		)
	}
	return ""
}

func renderFileList(a *app.AddView, width int) string {
	styles := theme.Current
	const sizeW = 10

	start := 0
	if a.Cursor >= maxFileRows {
		start = a.Cursor - maxFileRows + 1
	}
	end := min(start+maxFileRows, len(a.Files))

	var b strings.Builder
	var count int
	var total int64
	for _, f := range a.Files {
		if f.Selected {
			count++
			total += f.Size
		}
	}

	for i := start; i < end; i++ {
		f := a.Files[i]
		box := "[ ]"
		if f.Selected {
			box = "[x]"
		}
		line := box + " " + padRight(f.Name, width-sizeW-6) + " " + padLeft(formatSize(f.Size), sizeW)
		if i == a.Cursor {
			b.WriteString(styles.TableSelected.Render(line))
		} else {
			b.WriteString(styles.TableRow.Render(line))
		}
		b.WriteString("\n")
	}
	if len(a.Files) > maxFileRows {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("… %d–%d of %d", start+1, end, len(a.Files))))
		b.WriteString("\n")
	}
	b.WriteString(styles.Muted.Render(fmt.Sprintf("%d of %d selected, %s", count, len(a.Files), formatSize(total))))
	return b.String()
}

func (m Model) renderConfirm(c *app.ConfirmView) string {
	styles := theme.Current

	yes, no := styles.Button.Render("Yes"), styles.ButtonActive.Render("No")
	if c.Yes {
		yes, no = styles.ButtonActive.Render("Yes"), styles.Button.Render("No")
	}

	return modal("Confirm",
		c.Prompt,
		"",
		lipgloss.JoinHorizontal(lipgloss.Top, yes, "  ", no),
		"",
		hint("←/→", "choose", "y/n", "answer", "enter", "confirm", "esc", "cancel"),
	)
}

func (m Model) renderHelp(h *app.HelpView) string {
	styles := theme.Current

	lines := make([]string, 0, h.Height)
	lines = append(lines, h.Lines...)
	for len(lines) < h.Height {
		lines = append(lines, "")
	}

	last := min(h.Offset+h.Height, h.Total)
	position := styles.Muted.Render(fmt.Sprintf("%d–%d of %d", h.Offset+1, last, h.Total))

	return modal("Keys",
		strings.Join(lines, "\n"),
		"",
		position+"  "+hint("j/k", "scroll", "g/G", "ends", "?", "close"),
	)
}
