package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/litescript/ls-torrent-deck/internal/engine"
)

// Engine calls run inside tea.Cmd goroutines and report back with these.

type refreshMsg struct {
	list []engine.Status
	err  error
}

type resolveMsg struct {
	flow FlowID
	meta engine.Metadata
	err  error
}

type addMsg struct {
	flow   FlowID
	handle engine.Handle
	err    error
}

type opKind int

const (
	opPause opKind = iota
	opResume
	opDelete
)

func (o opKind) String() string {
	switch o {
	case opResume:
		return "resume"
	case opDelete:
		return "delete"
	default:
		return "pause"
	}
}

func (o opKind) past() string {
	switch o {
	case opResume:
		return "Resumed"
	case opDelete:
		return "Deleted"
	default:
		return "Paused"
	}
}

type opMsg struct {
	op   opKind
	id   engine.ID
	name string
	err  error
}

type tickMsg time.Time

type noticeExpiredMsg struct {
	seq int
}

func (m *Model) tickCmd() tea.Cmd {
	return tea.Tick(m.opts.RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// requestRefresh starts a list refresh, or queues one behind the refresh
// already in flight.
func (m *Model) requestRefresh() tea.Cmd {
	if m.fetching {
		m.refreshQueued = true
		return nil
	}
	m.fetching = true

	eng, timeout := m.engine, m.opts.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		list, err := eng.ListTorrents(ctx)
		return refreshMsg{list: list, err: err}
	}
}

func (m *Model) resolveCmd(flow FlowID, source string) tea.Cmd {
	eng, timeout := m.engine, m.opts.ResolveTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		meta, err := eng.ResolveMetadata(ctx, source)
		return resolveMsg{flow: flow, meta: meta, err: err}
	}
}

// submitCmd creates the job subfolder and hands the job to the engine. The
// folder is created without parents and never reused; if the engine rejects
// the job the empty folder is removed again.
func (m *Model) submitCmd(flow FlowID, req engine.AddRequest) tea.Cmd {
	eng, fsys, timeout, log := m.engine, m.fs, m.opts.AddTimeout, m.log
	return func() tea.Msg {
		if err := fsys.Mkdir(req.TargetDir); err != nil {
			if !errors.Is(err, engine.ErrFolderExists) {
				err = fmt.Errorf("creating %s: %w", req.TargetDir, err)
			}
			return addMsg{flow: flow, err: err}
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		h, err := eng.AddTorrent(ctx, req)
		if err != nil {
			if rmErr := fsys.Remove(req.TargetDir); rmErr != nil {
				log.WithError(rmErr).WithField("target", req.TargetDir).Warn("could not remove folder after failed add")
			}
			return addMsg{flow: flow, err: err}
		}
		return addMsg{flow: flow, handle: h}
	}
}

func (m *Model) opCmd(op opKind, id engine.ID, name string) tea.Cmd {
	eng, timeout := m.engine, m.opts.RequestTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var err error
		switch op {
		case opPause:
			err = eng.Pause(ctx, id)
		case opResume:
			err = eng.Resume(ctx, id)
		case opDelete:
			err = eng.Delete(ctx, id)
		}
		return opMsg{op: op, id: id, name: name, err: err}
	}
}
