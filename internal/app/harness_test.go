package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/litescript/ls-torrent-deck/internal/engine"
)

// fakeEngine records calls and serves a scripted torrent list.
type fakeEngine struct {
	mu sync.Mutex

	meta       map[string]engine.Metadata
	resolveErr error
	addErr     error
	listErr    error
	opErr      error
	// addDelay holds AddTorrent back, giving up early if ctx ends first.
	addDelay time.Duration

	list []engine.Status

	resolveCalls []string
	addCalls     []engine.AddRequest
	paused       []engine.ID
	resumed      []engine.ID
	deleted      []engine.ID
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{meta: map[string]engine.Metadata{}}
}

func (f *fakeEngine) ResolveMetadata(_ context.Context, source string) (engine.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolveCalls = append(f.resolveCalls, source)
	if f.resolveErr != nil {
		return engine.Metadata{}, f.resolveErr
	}
	meta, ok := f.meta[source]
	if !ok {
		return engine.Metadata{}, engine.ErrInvalidSource
	}
	return meta, nil
}

func (f *fakeEngine) AddTorrent(ctx context.Context, req engine.AddRequest) (engine.Handle, error) {
	f.mu.Lock()
	delay := f.addDelay
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return engine.Handle{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls = append(f.addCalls, req)
	if f.addErr != nil {
		return engine.Handle{}, f.addErr
	}
	meta := f.meta[req.Source]
	if engine.SameDestination(f.list, meta.InfoHash, req.BasePath()) {
		return engine.Handle{}, engine.ErrDuplicatePath
	}
	id := engine.ID(fmt.Sprintf("%s@%s", meta.InfoHash, req.BasePath()))
	f.list = append(f.list, engine.Status{
		ID:        id,
		InfoHash:  meta.InfoHash,
		Name:      meta.Name,
		State:     engine.StateInitializing,
		TargetDir: req.TargetDir,
		BasePath:  req.BasePath(),
	})
	return engine.Handle{ID: id, InfoHash: meta.InfoHash, Name: meta.Name}, nil
}

func (f *fakeEngine) ListTorrents(context.Context) ([]engine.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]engine.Status(nil), f.list...), nil
}

func (f *fakeEngine) setState(id engine.ID, s engine.State) {
	for i := range f.list {
		if f.list[i].ID == id {
			f.list[i].State = s
		}
	}
}

func (f *fakeEngine) Pause(_ context.Context, id engine.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.opErr != nil {
		return f.opErr
	}
	f.paused = append(f.paused, id)
	f.setState(id, engine.StatePaused)
	return nil
}

func (f *fakeEngine) Resume(_ context.Context, id engine.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.opErr != nil {
		return f.opErr
	}
	f.resumed = append(f.resumed, id)
	f.setState(id, engine.StateDownloading)
	return nil
}

func (f *fakeEngine) Delete(_ context.Context, id engine.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.opErr != nil {
		return f.opErr
	}
	f.deleted = append(f.deleted, id)
	kept := f.list[:0]
	for _, s := range f.list {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	f.list = kept
	return nil
}

func (f *fakeEngine) Close() error { return nil }

// harness drives a Model the way the Bubble Tea runtime would, running
// commands synchronously and feeding their messages back in.
type harness struct {
	t    *testing.T
	m    Model
	eng  *fakeEngine
	logs *logtest.Hook
	quit bool
}

func newHarness(t *testing.T, eng *fakeEngine, defaultDir string) *harness {
	return newHarnessWith(t, eng, Options{DefaultDir: defaultDir})
}

func newHarnessWith(t *testing.T, eng *fakeEngine, opts Options) *harness {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	opts.CursorBlink = false
	return &harness{
		t:    t,
		m:    New(eng, OSFS{}, logger.WithField("component", "app"), opts),
		eng:  eng,
		logs: hook,
	}
}

// send applies msg and runs every resulting command to completion.
func (h *harness) send(msg tea.Msg) {
	h.t.Helper()
	h.run(h.update(msg))
}

// update applies msg without running the resulting command.
func (h *harness) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	h.m, cmd = h.m.Update(msg)
	return cmd
}

func (h *harness) run(cmd tea.Cmd) {
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case nil:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case tea.QuitMsg:
			h.quit = true
		default:
			queue = append(queue, h.update(msg))
		}
	}
}

func (h *harness) key(k string) {
	h.t.Helper()
	h.send(keyMsg(k))
}

// press applies a key but holds back the command it produced.
func (h *harness) press(k string) tea.Cmd {
	return h.update(keyMsg(k))
}

func (h *harness) typeText(s string) {
	h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func (h *harness) paste(s string) {
	h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s), Paste: true})
}

func (h *harness) refresh() {
	h.t.Helper()
	h.key("r")
}

func (h *harness) flow() AddFlow {
	h.t.Helper()
	flow, ok := h.m.Dialog().(AddFlow)
	if !ok {
		h.t.Fatalf("expected add flow, got %T", h.m.Dialog())
	}
	return flow
}

var namedKeys = map[string]tea.KeyType{
	"enter":     tea.KeyEnter,
	"backspace": tea.KeyBackspace,
	"esc":       tea.KeyEscape,
	"up":        tea.KeyUp,
	"down":      tea.KeyDown,
	"left":      tea.KeyLeft,
	"right":     tea.KeyRight,
	"tab":       tea.KeyTab,
	"pgup":      tea.KeyPgUp,
	"pgdown":    tea.KeyPgDown,
	"home":      tea.KeyHome,
	"end":       tea.KeyEnd,
	"delete":    tea.KeyDelete,
	"ctrl+c":    tea.KeyCtrlC,
	"ctrl+u":    tea.KeyCtrlU,
	"ctrl+d":    tea.KeyCtrlD,
}

func keyMsg(k string) tea.KeyMsg {
	if k == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	if t, ok := namedKeys[k]; ok {
		return tea.KeyMsg{Type: t}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func status(id, name string, s engine.State) engine.Status {
	return engine.Status{ID: engine.ID(id), InfoHash: "hash-" + id, Name: name, State: s, BasePath: "/data"}
}
