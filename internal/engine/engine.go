// Package engine defines the contract between the control surface and the
// torrent engine that does the actual downloading. Two backends implement it:
// an embedded anacrolix/torrent client and a qBittorrent Web API client.
package engine

import (
	"context"
	"errors"
	"path/filepath"
)

// Engine errors. Backends wrap these so callers can classify failures with errors.Is.
var (
	ErrFolderExists  = errors.New("target folder already exists")
	ErrDuplicatePath = errors.New("torrent already added for this download directory")
	ErrUnreachable   = errors.New("torrent engine unreachable")
	ErrNotFound      = errors.New("torrent not found")
	ErrInvalidSource = errors.New("input must be a magnet, URL, or an existing .torrent file path")
	ErrNoFiles       = errors.New("no files selected")
)

// ID is an opaque handle assigned by the engine.
type ID string

// State is the engine-reported lifecycle state of a torrent.
type State int

const (
	StateInitializing State = iota
	StateDownloading
	StateSeeding
	StatePaused
	StateError
)

func (s State) String() string {
	switch s {
	case StateDownloading:
		return "Downloading"
	case StateSeeding:
		return "Seeding"
	case StatePaused:
		return "Paused"
	case StateError:
		return "Error"
	default:
		return "Initializing"
	}
}

// File is one entry of a torrent's file list.
type File struct {
	Name string
	Size int64
}

// Metadata is what the engine learned about a source before it is added.
type Metadata struct {
	InfoHash string
	Name     string
	Files    []File
}

// AddRequest describes a download job. OnlyFiles holds indices into the
// file list returned by ResolveMetadata and is applied atomically with the add.
type AddRequest struct {
	Source    string
	TargetDir string
	OnlyFiles []int
}

// BasePath is the directory that holds the job's subfolder.
func (r AddRequest) BasePath() string {
	return filepath.Dir(filepath.Clean(r.TargetDir))
}

// Handle identifies a freshly added torrent.
type Handle struct {
	ID       ID
	InfoHash string
	Name     string
}

// Status is a point-in-time snapshot of one torrent.
type Status struct {
	ID        ID
	InfoHash  string
	Name      string
	State     State
	Progress  float64
	DownSpeed int64
	UpSpeed   int64
	TargetDir string
	BasePath  string
	Err       string
}

// Engine is the torrent engine collaborator.
type Engine interface {
	ResolveMetadata(ctx context.Context, source string) (Metadata, error)
	AddTorrent(ctx context.Context, req AddRequest) (Handle, error)
	ListTorrents(ctx context.Context) ([]Status, error)
	Pause(ctx context.Context, id ID) error
	Resume(ctx context.Context, id ID) error
	Delete(ctx context.Context, id ID) error
	Close() error
}

// SameDestination reports whether any listed torrent already holds infoHash
// under basePath.
func SameDestination(list []Status, infoHash, basePath string) bool {
	if infoHash == "" {
		return false
	}
	basePath = filepath.Clean(basePath)
	for _, t := range list {
		if t.InfoHash == infoHash && filepath.Clean(t.BasePath) == basePath {
			return true
		}
	}
	return false
}
