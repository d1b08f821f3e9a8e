package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litescript/ls-torrent-deck/internal/app"
	"github.com/litescript/ls-torrent-deck/internal/engine"
)

type stubEngine struct {
	list     []engine.Status
	pauseErr error
}

func (s *stubEngine) ResolveMetadata(context.Context, string) (engine.Metadata, error) {
	return engine.Metadata{Name: "Foo", Files: []engine.File{{Name: "a", Size: 1}}}, nil
}

func (s *stubEngine) AddTorrent(context.Context, engine.AddRequest) (engine.Handle, error) {
	return engine.Handle{}, errors.New("not supported")
}

func (s *stubEngine) ListTorrents(context.Context) ([]engine.Status, error) {
	return s.list, nil
}

func (s *stubEngine) Pause(context.Context, engine.ID) error  { return s.pauseErr }
func (s *stubEngine) Resume(context.Context, engine.ID) error { return nil }
func (s *stubEngine) Delete(context.Context, engine.ID) error { return nil }
func (s *stubEngine) Close() error                            { return nil }

// started builds the UI and applies the initial refresh.
func started(t *testing.T, eng *stubEngine) Model {
	t.Helper()
	m := New(app.New(eng, app.OSFS{}, nil, app.Options{
		DefaultDir:      t.TempDir(),
		RefreshInterval: time.Hour,
	}))
	batch, ok := m.Init()().(tea.BatchMsg)
	require.True(t, ok)
	require.NotEmpty(t, batch)

	m = step(m, batch[0]())
	return step(m, tea.WindowSizeMsg{Width: 120, Height: 30})
}

func step(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func press(m Model, k string) (Model, tea.Cmd) {
	var msg tea.KeyMsg
	switch k {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func sampleEngine() *stubEngine {
	return &stubEngine{list: []engine.Status{
		{ID: "1", Name: "ubuntu.iso", State: engine.StateDownloading, Progress: 0.42, DownSpeed: 2048},
		{ID: "2", Name: "debian.iso", State: engine.StateSeeding, Progress: 1, UpSpeed: 512},
	}}
}

func TestViewListsTorrents(t *testing.T) {
	m := started(t, sampleEngine())
	view := m.View()

	assert.Contains(t, view, "torrent-deck")
	assert.Contains(t, view, "ubuntu.iso")
	assert.Contains(t, view, "debian.iso")
	assert.Contains(t, view, "[1]All(2)")
	assert.Contains(t, view, "[3]Seeding(1)")
	assert.Contains(t, view, "42.0%")
	assert.Contains(t, view, "2.0 KB/s")
}

func TestViewEmptyList(t *testing.T) {
	m := started(t, &stubEngine{})
	assert.Contains(t, m.View(), "No torrents")

	m, _ = press(m, "5")
	assert.Contains(t, m.View(), "No error torrents")
}

func TestViewDialogs(t *testing.T) {
	m := started(t, sampleEngine())

	m, _ = press(m, "q")
	assert.Contains(t, m.View(), "Quit torrent-deck?")
	m = step(m, tea.KeyMsg{Type: tea.KeyEscape})

	m, _ = press(m, "?")
	view := m.View()
	assert.Contains(t, view, "Keys")
	assert.Contains(t, view, "add torrent")
	m = step(m, tea.KeyMsg{Type: tea.KeyEscape})

	m, _ = press(m, "a")
	assert.Contains(t, m.View(), "Add torrent")
}

func TestSpinnerRunsWhileResolving(t *testing.T) {
	m := started(t, sampleEngine())
	m, _ = press(m, "a")
	m = step(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("magnet:?xt=urn:btih:abc")})

	m, cmd := press(m, "enter")
	require.NotNil(t, cmd)
	assert.True(t, m.spinning)
	assert.Contains(t, m.View(), "Fetching metadata")
}

func TestNoticeShown(t *testing.T) {
	eng := sampleEngine()
	eng.pauseErr = errors.New("engine said no")
	m := started(t, eng)

	m, cmd := press(m, "p")
	require.NotNil(t, cmd)
	m = step(m, cmd())

	assert.Contains(t, m.View(), "engine said no")
}

func TestThemeChanged(t *testing.T) {
	m := started(t, sampleEngine())
	next, cmd := m.Update(ThemeChangedMsg{})
	assert.Nil(t, cmd)
	assert.Contains(t, next.(Model).View(), "ubuntu.iso")
}

func TestOverlayModal(t *testing.T) {
	var m Model
	vm := app.ViewModel{Width: 20, Height: 6}
	base := strings.Join([]string{"aaaa", "bbbb", "cccc"}, "\n")

	out := m.overlayModal(vm, base, "XX\nYY")
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "aaaa", lines[0])
	assert.Equal(t, "bbbb", lines[1])
	assert.Equal(t, strings.Repeat(" ", 9)+"XX", lines[2])
	assert.Equal(t, strings.Repeat(" ", 9)+"YY", lines[3])
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.5 KB", formatSize(1536))
	assert.Equal(t, "1.0 GB", formatSize(1<<30))
	assert.Equal(t, "-", formatSpeed(0))
	assert.Equal(t, "1.0 MB/s", formatSpeed(1<<20))

	assert.Equal(t, "abc  ", padRight("abc", 5))
	assert.Equal(t, "  abc", padLeft("abc", 5))
	assert.Equal(t, 6, lipgloss.Width(padRight("ファイル名です", 6)))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "", truncate("abc", 0))
}
