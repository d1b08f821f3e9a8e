// Package app is the application state machine behind the terminal UI: the
// torrent list cache and its filters, the single dialog slot, the multi-step
// add flow and the key router. It renders nothing; internal/tui draws the
// ViewModel it produces.
package app

import (
	"github.com/litescript/ls-torrent-deck/internal/engine"
)

// TorrentView is the display projection of one engine-reported torrent.
type TorrentView struct {
	ID        engine.ID
	InfoHash  string
	Name      string
	Status    engine.State
	Progress  float64
	DownSpeed int64
	UpSpeed   int64
	TargetDir string
	BasePath  string
	Err       string
}

// NewTorrentView normalizes an engine status into display fields.
func NewTorrentView(s engine.Status) TorrentView {
	v := TorrentView{
		ID:        s.ID,
		InfoHash:  s.InfoHash,
		Name:      s.Name,
		Status:    s.State,
		Progress:  s.Progress,
		DownSpeed: s.DownSpeed,
		UpSpeed:   s.UpSpeed,
		TargetDir: s.TargetDir,
		BasePath:  s.BasePath,
		Err:       s.Err,
	}
	if v.Progress < 0 {
		v.Progress = 0
	}
	if v.Progress > 1 {
		v.Progress = 1
	}
	if v.DownSpeed < 0 {
		v.DownSpeed = 0
	}
	if v.UpSpeed < 0 {
		v.UpSpeed = 0
	}
	return v
}

// DisplayName falls back to a short info-hash until metadata has a name.
func (t TorrentView) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	if len(t.InfoHash) > 12 {
		return t.InfoHash[:12]
	}
	if t.InfoHash != "" {
		return t.InfoHash
	}
	return string(t.ID)
}

func viewsFromStatus(list []engine.Status) []TorrentView {
	views := make([]TorrentView, len(list))
	for i, s := range list {
		views[i] = NewTorrentView(s)
	}
	return views
}

func statusesFromViews(views []TorrentView) []engine.Status {
	list := make([]engine.Status, len(views))
	for i, v := range views {
		list[i] = engine.Status{ID: v.ID, InfoHash: v.InfoHash, BasePath: v.BasePath}
	}
	return list
}
