package qbit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/litescript/ls-torrent-deck/internal/engine"
	"github.com/sirupsen/logrus"
)

// previewTag marks torrents added only to learn a magnet's file list.
const previewTag = "torrent-deck-preview"

// jobTag marks torrents added by AddTorrent. Their save path is the job
// folder itself.
const jobTag = "torrent-deck"

var _ engine.Engine = (*Client)(nil)

// stopOnMetadata makes qBittorrent stop a magnet as soon as its info is known.
const stopOnMetadata = "MetadataReceived"

// ResolveMetadata learns the file list of source. Magnets are added under
// previewTag until qBittorrent has fetched their metadata, then removed.
func (c *Client) ResolveMetadata(ctx context.Context, source string) (engine.Metadata, error) {
	src, err := engine.ParseSource(source)
	if err != nil {
		return engine.Metadata{}, err
	}
	res, err := c.fetcher.Resolve(ctx, src)
	if err != nil {
		return engine.Metadata{}, err
	}
	if res.MetaInfo != nil {
		return engine.MetadataFromInfo(res.MetaInfo)
	}

	hash, err := res.InfoHash()
	if err != nil {
		return engine.Metadata{}, err
	}

	existing, err := c.GetTorrents(ctx, hash)
	if err != nil {
		return engine.Metadata{}, err
	}
	if len(existing) == 0 {
		if err := c.add(ctx, addParams{magnet: res.Magnet, tags: previewTag, stopCondition: stopOnMetadata}); err != nil {
			return engine.Metadata{}, err
		}
		defer func() {
			// The caller's ctx may already be cancelled
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := c.Remove(cleanupCtx, hash, true); err != nil {
				c.log.WithError(err).WithField("hash", hash).Warn("failed to remove preview torrent")
			}
		}()
	}

	files, err := c.waitForFiles(ctx, hash)
	if err != nil {
		return engine.Metadata{}, err
	}

	name := hash
	if infos, err := c.GetTorrents(ctx, hash); err == nil && len(infos) > 0 {
		name = infos[0].Name
	}
	return metadataFromFiles(hash, name, files), nil
}

// waitForFiles polls until qBittorrent knows the torrent's files.
func (c *Client) waitForFiles(ctx context.Context, hash string) ([]FileInfo, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		files, err := c.GetFiles(ctx, hash)
		if err != nil && !errors.Is(err, engine.ErrNotFound) {
			return nil, err
		}
		if len(files) > 0 {
			return files, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for metadata: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func metadataFromFiles(hash, name string, files []FileInfo) engine.Metadata {
	meta := engine.Metadata{
		InfoHash: hash,
		Name:     name,
		Files:    make([]engine.File, len(files)),
	}
	for i, f := range files {
		meta.Files[i] = engine.File{Name: f.Name, Size: f.Size}
	}
	return meta
}

// AddTorrent adds req stopped (magnets stop once their info arrives), applies
// file priorities and only then starts it.
// On any failure after the add the torrent is removed again.
func (c *Client) AddTorrent(ctx context.Context, req engine.AddRequest) (engine.Handle, error) {
	src, err := engine.ParseSource(req.Source)
	if err != nil {
		return engine.Handle{}, err
	}
	res, err := c.fetcher.Resolve(ctx, src)
	if err != nil {
		return engine.Handle{}, err
	}
	hash, err := res.InfoHash()
	if err != nil {
		return engine.Handle{}, err
	}

	existing, err := c.GetTorrents(ctx, hash)
	if err != nil {
		return engine.Handle{}, err
	}
	for _, t := range existing {
		if hasTag(t.Tags, previewTag) {
			continue
		}
		if _, base := destination(t); base == filepath.Clean(req.BasePath()) {
			return engine.Handle{}, engine.ErrDuplicatePath
		}
		return engine.Handle{}, fmt.Errorf("qBittorrent already has this torrent in %s", t.SavePath)
	}

	params := addParams{savePath: req.TargetDir, tags: jobTag}
	if res.MetaInfo != nil {
		params.stopped = true
		var buf bytes.Buffer
		if err := res.MetaInfo.Write(&buf); err != nil {
			return engine.Handle{}, fmt.Errorf("encoding torrent: %w", err)
		}
		params.torrentFile = buf.Bytes()
	} else {
		params.magnet = res.Magnet
		params.stopCondition = stopOnMetadata
	}
	if err := c.add(ctx, params); err != nil {
		return engine.Handle{}, err
	}

	handle, err := c.finishAdd(ctx, hash, req.OnlyFiles)
	if err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if rmErr := c.Remove(cleanupCtx, hash, true); rmErr != nil {
			c.log.WithError(rmErr).WithField("hash", hash).Warn("failed to roll back add")
		}
		return engine.Handle{}, err
	}

	c.log.WithFields(logrus.Fields{
		"hash":   hash,
		"target": req.TargetDir,
		"files":  len(req.OnlyFiles),
	}).Info("torrent added")
	return handle, nil
}

func (c *Client) finishAdd(ctx context.Context, hash string, onlyFiles []int) (engine.Handle, error) {
	files, err := c.waitForFiles(ctx, hash)
	if err != nil {
		return engine.Handle{}, err
	}

	selected, err := engine.SelectionSet(onlyFiles, len(files))
	if err != nil {
		return engine.Handle{}, err
	}
	var skipped []int
	for _, f := range files {
		if !selected[f.Index] {
			skipped = append(skipped, f.Index)
		}
	}
	if err := c.SetFilePriority(ctx, hash, skipped, 0); err != nil {
		return engine.Handle{}, err
	}
	if err := c.Resume(ctx, engine.ID(hash)); err != nil {
		return engine.Handle{}, err
	}

	name := hash
	if infos, err := c.GetTorrents(ctx, hash); err == nil && len(infos) > 0 {
		name = infos[0].Name
	}
	return engine.Handle{ID: engine.ID(hash), InfoHash: hash, Name: name}, nil
}

// ListTorrents reports every torrent except preview adds.
func (c *Client) ListTorrents(ctx context.Context) ([]engine.Status, error) {
	torrents, err := c.GetTorrents(ctx)
	if err != nil {
		return nil, err
	}

	list := make([]engine.Status, 0, len(torrents))
	for _, t := range torrents {
		if hasTag(t.Tags, previewTag) {
			continue
		}
		target, base := destination(t)
		st := engine.Status{
			ID:        engine.ID(t.Hash),
			InfoHash:  t.Hash,
			Name:      t.Name,
			State:     mapState(t.State),
			Progress:  t.Progress,
			DownSpeed: t.DLSpeed,
			UpSpeed:   t.UPSpeed,
			TargetDir: target,
			BasePath:  base,
		}
		if st.State == engine.StateError {
			st.Err = t.State
		}
		list = append(list, st)
	}
	return list, nil
}

// destination returns the folder holding t's data and the base path above
// it. Jobs added here own their save path. Torrents added elsewhere sit in
// save_path directly, with their data at content_path.
func destination(t TorrentInfo) (target, base string) {
	save := filepath.Clean(t.SavePath)
	if hasTag(t.Tags, jobTag) {
		return save, filepath.Dir(save)
	}
	if t.ContentPath != "" {
		return filepath.Clean(t.ContentPath), save
	}
	return save, save
}

// mapState folds qBittorrent's states into the engine's five.
func mapState(s string) engine.State {
	switch s {
	case "error", "missingFiles":
		return engine.StateError
	case "pausedDL", "pausedUP", "stoppedDL", "stoppedUP":
		return engine.StatePaused
	case "uploading", "stalledUP", "queuedUP", "forcedUP", "checkingUP":
		return engine.StateSeeding
	case "downloading", "stalledDL", "queuedDL", "forcedDL", "checkingDL":
		return engine.StateDownloading
	default:
		// metaDL, forcedMetaDL, allocating, moving, checkingResumeData, unknown
		return engine.StateInitializing
	}
}

func hasTag(tags, tag string) bool {
	for _, t := range strings.Split(tags, ",") {
		if strings.TrimSpace(t) == tag {
			return true
		}
	}
	return false
}
