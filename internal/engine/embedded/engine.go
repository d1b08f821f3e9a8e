// Package embedded runs torrents in-process with anacrolix/torrent. Each job
// writes straight into its own target directory and is persisted in a SQLite
// job store so it is restored on the next start.
package embedded

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"
	"github.com/litescript/ls-torrent-deck/internal/engine"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Options configures the embedded engine.
type Options struct {
	DataDir    string
	ListenPort int
	Seed       bool
	// Rate limits in KiB/s, 0 means unlimited
	UploadLimit   int
	DownloadLimit int
	// Offline disables DHT, trackers and PEX.
	Offline bool
	Logger  *logrus.Entry
}

// Engine implements engine.Engine on an anacrolix client.
type Engine struct {
	client     *torrent.Client
	store      *Store
	fetcher    *engine.Fetcher
	completion storage.PieceCompletion
	seed       bool
	log        *logrus.Entry

	mu   sync.Mutex
	jobs map[string]*job
	// resolved caches magnet info between ResolveMetadata and AddTorrent
	resolved *resolvedCache
}

type job struct {
	Job
	t      *torrent.Torrent
	err    string
	sample speedSample
}

type speedSample struct {
	at      time.Time
	read    int64
	written int64
	down    int64
	up      int64
}

var _ engine.Engine = (*Engine)(nil)

// New starts the client and restores persisted jobs.
func New(opts Options) (*Engine, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "embedded")

	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	store, err := OpenStore(filepath.Join(opts.DataDir, "jobs.db"))
	if err != nil {
		return nil, err
	}

	completion, err := storage.NewDefaultPieceCompletionForDir(opts.DataDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening piece completion: %w", err)
	}

	cfg := torrent.NewDefaultClientConfig()
	// Metadata-only resolves land here; job data goes to per-job storage
	cfg.DataDir = filepath.Join(opts.DataDir, "resolve")
	cfg.ListenPort = opts.ListenPort
	cfg.Seed = opts.Seed
	if opts.UploadLimit > 0 {
		cfg.UploadRateLimiter = rate.NewLimiter(rate.Limit(opts.UploadLimit*1024), opts.UploadLimit*1024)
	}
	if opts.DownloadLimit > 0 {
		cfg.DownloadRateLimiter = rate.NewLimiter(rate.Limit(opts.DownloadLimit*1024), opts.DownloadLimit*1024)
	}
	if opts.Offline {
		cfg.NoDHT = true
		cfg.DisableTrackers = true
		cfg.DisablePEX = true
	}

	client, err := torrent.NewClient(cfg)
	if err != nil {
		completion.Close()
		store.Close()
		return nil, fmt.Errorf("%w: starting torrent client: %v", engine.ErrUnreachable, err)
	}

	e := &Engine{
		client:     client,
		store:      store,
		fetcher:    engine.NewFetcher(),
		completion: completion,
		seed:       opts.Seed,
		log:        log,
		jobs:       make(map[string]*job),
		resolved:   newResolvedCache(maxResolved),
	}

	if err := e.restore(); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// restore re-adds every persisted job.
func (e *Engine) restore() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	jobs, err := e.store.List(ctx)
	if err != nil {
		return fmt.Errorf("loading jobs: %w", err)
	}

	for _, j := range jobs {
		spec, err := specForJob(j)
		if err != nil {
			e.log.WithError(err).WithField("hash", j.InfoHash).Warn("skipping unreadable job")
			continue
		}
		if _, err := e.start(j, spec); err != nil {
			e.log.WithError(err).WithField("hash", j.InfoHash).Warn("failed to restore job")
			continue
		}
	}
	e.log.WithField("jobs", len(jobs)).Info("restored jobs")
	return nil
}

func specForJob(j Job) (*torrent.TorrentSpec, error) {
	if len(j.MetaInfo) > 0 {
		mi, err := metainfo.Load(bytes.NewReader(j.MetaInfo))
		if err != nil {
			return nil, err
		}
		return torrent.TorrentSpecFromMetaInfoErr(mi)
	}
	if j.Magnet == "" {
		return nil, errors.New("job has neither info nor magnet")
	}
	return torrent.TorrentSpecFromMagnetUri(j.Magnet)
}

// jobStorage writes the torrent's files directly into targetDir.
func (e *Engine) jobStorage(targetDir string) storage.ClientImpl {
	return storage.NewFileOpts(storage.NewFileClientOpts{
		ClientBaseDir:   targetDir,
		PieceCompletion: e.completion,
		FilePathMaker: func(opts storage.FilePathMakerOpts) string {
			parts := opts.File.BestPath()
			if len(parts) == 0 {
				// Single-file torrent
				return opts.Info.BestName()
			}
			return filepath.Join(parts...)
		},
	})
}

// start adds j to the client and applies its selection once info is known.
func (e *Engine) start(j Job, spec *torrent.TorrentSpec) (*job, error) {
	spec.Storage = e.jobStorage(j.TargetDir)

	t, _, err := e.client.AddTorrentSpec(spec)
	if err != nil {
		return nil, fmt.Errorf("adding torrent: %w", err)
	}
	// Nothing moves until the selection is applied
	t.DisallowDataDownload()

	jb := &job{Job: j, t: t}
	e.mu.Lock()
	e.jobs[j.InfoHash] = jb
	e.mu.Unlock()

	go e.activate(jb)
	return jb, nil
}

// activate waits for info, then enables exactly the selected files.
func (e *Engine) activate(jb *job) {
	<-jb.t.GotInfo()

	files := jb.t.Files()
	selected, err := engine.SelectionSet(jb.OnlyFiles, len(files))
	if err != nil {
		e.mu.Lock()
		jb.err = err.Error()
		e.mu.Unlock()
		e.log.WithError(err).WithField("hash", jb.InfoHash).Warn("invalid file selection")
		return
	}
	for i, f := range files {
		if selected[i] {
			f.Download()
		} else {
			f.SetPriority(torrent.PiecePriorityNone)
		}
	}

	e.mu.Lock()
	paused := jb.Paused
	needsInfo := len(jb.MetaInfo) == 0
	e.mu.Unlock()

	if needsInfo {
		var buf bytes.Buffer
		mi := jb.t.Metainfo()
		if err := mi.Write(&buf); err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := e.store.SetMetaInfo(ctx, jb.InfoHash, jb.t.Name(), buf.Bytes()); err != nil {
				e.log.WithError(err).Warn("failed to persist torrent info")
			}
			cancel()
			e.mu.Lock()
			jb.MetaInfo = buf.Bytes()
			jb.Name = jb.t.Name()
			e.mu.Unlock()
		}
	}

	if paused {
		jb.t.DisallowDataUpload()
		return
	}
	jb.t.AllowDataDownload()
}

// ResolveMetadata describes source without starting a job. Magnets are added
// to the client until their info arrives, then dropped again.
func (e *Engine) ResolveMetadata(ctx context.Context, source string) (engine.Metadata, error) {
	src, err := engine.ParseSource(source)
	if err != nil {
		return engine.Metadata{}, err
	}
	res, err := e.fetcher.Resolve(ctx, src)
	if err != nil {
		return engine.Metadata{}, err
	}
	if res.MetaInfo != nil {
		return engine.MetadataFromInfo(res.MetaInfo)
	}

	spec, err := torrent.TorrentSpecFromMagnetUri(res.Magnet)
	if err != nil {
		return engine.Metadata{}, fmt.Errorf("%w: %v", engine.ErrInvalidSource, err)
	}
	hash := spec.InfoHash.HexString()

	e.mu.Lock()
	cached := e.resolved.get(hash)
	e.mu.Unlock()
	if cached != nil {
		return engine.MetadataFromInfo(cached)
	}

	_, existed := e.client.Torrent(spec.InfoHash)
	t, _, err := e.client.AddTorrentSpec(spec)
	if err != nil {
		return engine.Metadata{}, fmt.Errorf("adding magnet: %w", err)
	}
	if !existed {
		defer t.Drop()
	}

	select {
	case <-t.GotInfo():
	case <-ctx.Done():
		return engine.Metadata{}, fmt.Errorf("waiting for metadata: %w", ctx.Err())
	}

	mi := t.Metainfo()
	e.mu.Lock()
	e.resolved.put(hash, &mi)
	e.mu.Unlock()
	return engine.MetadataFromInfo(&mi)
}

// AddTorrent starts a job. The client holds one copy of a torrent, so the same
// info-hash in a different base path is refused too.
func (e *Engine) AddTorrent(ctx context.Context, req engine.AddRequest) (engine.Handle, error) {
	src, err := engine.ParseSource(req.Source)
	if err != nil {
		return engine.Handle{}, err
	}
	res, err := e.fetcher.Resolve(ctx, src)
	if err != nil {
		return engine.Handle{}, err
	}
	hash, err := res.InfoHash()
	if err != nil {
		return engine.Handle{}, err
	}

	e.mu.Lock()
	existing, dup := e.jobs[hash]
	mi := res.MetaInfo
	if mi == nil {
		mi = e.resolved.get(hash)
	}
	e.mu.Unlock()
	if dup {
		if filepath.Clean(existing.BasePath()) == filepath.Clean(req.BasePath()) {
			return engine.Handle{}, engine.ErrDuplicatePath
		}
		return engine.Handle{}, fmt.Errorf("this torrent is already downloading into %s", existing.TargetDir)
	}

	j := Job{
		InfoHash:  hash,
		Magnet:    res.Magnet,
		TargetDir: filepath.Clean(req.TargetDir),
		OnlyFiles: req.OnlyFiles,
		AddedAt:   time.Now(),
	}

	var spec *torrent.TorrentSpec
	if mi != nil {
		meta, err := engine.MetadataFromInfo(mi)
		if err != nil {
			return engine.Handle{}, err
		}
		// Reject a bad selection before anything touches disk
		if _, err := engine.SelectionSet(req.OnlyFiles, len(meta.Files)); err != nil {
			return engine.Handle{}, err
		}
		j.Name = meta.Name

		var buf bytes.Buffer
		if err := mi.Write(&buf); err != nil {
			return engine.Handle{}, fmt.Errorf("encoding torrent: %w", err)
		}
		j.MetaInfo = buf.Bytes()

		spec, err = torrent.TorrentSpecFromMetaInfoErr(mi)
		if err != nil {
			return engine.Handle{}, fmt.Errorf("%w: %v", engine.ErrInvalidSource, err)
		}
	} else {
		if len(req.OnlyFiles) == 0 {
			return engine.Handle{}, engine.ErrNoFiles
		}
		spec, err = torrent.TorrentSpecFromMagnetUri(res.Magnet)
		if err != nil {
			return engine.Handle{}, fmt.Errorf("%w: %v", engine.ErrInvalidSource, err)
		}
	}

	if err := e.store.Put(ctx, j); err != nil {
		return engine.Handle{}, err
	}
	jb, err := e.start(j, spec)
	if err != nil {
		if delErr := e.store.Delete(context.Background(), hash); delErr != nil {
			e.log.WithError(delErr).Warn("failed to forget job after add failure")
		}
		return engine.Handle{}, err
	}

	e.mu.Lock()
	e.resolved.remove(hash)
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{
		"hash":   hash,
		"target": j.TargetDir,
		"files":  len(j.OnlyFiles),
	}).Info("torrent added")

	name := j.Name
	if name == "" {
		name = jb.t.Name()
	}
	return engine.Handle{ID: engine.ID(hash), InfoHash: hash, Name: name}, nil
}

// ListTorrents snapshots every job, oldest first.
func (e *Engine) ListTorrents(ctx context.Context) ([]engine.Status, error) {
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	jobs := make([]*job, 0, len(e.jobs))
	for _, jb := range e.jobs {
		jobs = append(jobs, jb)
	}
	sort.Slice(jobs, func(i, k int) bool {
		if !jobs[i].AddedAt.Equal(jobs[k].AddedAt) {
			return jobs[i].AddedAt.Before(jobs[k].AddedAt)
		}
		return jobs[i].InfoHash < jobs[k].InfoHash
	})

	list := make([]engine.Status, 0, len(jobs))
	for _, jb := range jobs {
		list = append(list, e.status(jb, now))
	}
	return list, nil
}

// status must be called with e.mu held.
func (e *Engine) status(jb *job, now time.Time) engine.Status {
	st := engine.Status{
		ID:        engine.ID(jb.InfoHash),
		InfoHash:  jb.InfoHash,
		Name:      jb.Name,
		TargetDir: jb.TargetDir,
		BasePath:  jb.BasePath(),
		State:     engine.StateInitializing,
	}
	if st.Name == "" {
		st.Name = jb.t.Name()
	}

	stats := jb.t.Stats()
	jb.sample = nextSample(jb.sample, stats.BytesReadUsefulData.Int64(), stats.BytesWrittenData.Int64(), now)

	if jb.err != "" {
		st.State = engine.StateError
		st.Err = jb.err
		return st
	}

	select {
	case <-jb.t.GotInfo():
	default:
		if jb.Paused {
			st.State = engine.StatePaused
		}
		return st
	}

	var wanted, done int64
	selected, _ := engine.SelectionSet(jb.OnlyFiles, len(jb.t.Files()))
	for i, f := range jb.t.Files() {
		if selected[i] {
			wanted += f.Length()
			done += f.BytesCompleted()
		}
	}
	if wanted > 0 {
		st.Progress = float64(done) / float64(wanted)
	}

	switch {
	case jb.Paused:
		st.State = engine.StatePaused
	case wanted > 0 && done >= wanted:
		st.State = engine.StateSeeding
		st.UpSpeed = jb.sample.up
	default:
		st.State = engine.StateDownloading
		st.DownSpeed = jb.sample.down
		st.UpSpeed = jb.sample.up
	}
	return st
}

// nextSample derives byte rates from two cumulative counter readings.
func nextSample(prev speedSample, read, written int64, now time.Time) speedSample {
	next := speedSample{at: now, read: read, written: written}
	if prev.at.IsZero() {
		return next
	}
	elapsed := now.Sub(prev.at).Seconds()
	if elapsed < 0.2 {
		// Too close to the last reading to be meaningful
		return prev
	}
	if read >= prev.read {
		next.down = int64(float64(read-prev.read) / elapsed)
	}
	if written >= prev.written {
		next.up = int64(float64(written-prev.written) / elapsed)
	}
	return next
}

func (e *Engine) lookup(id engine.ID) (*job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	jb, ok := e.jobs[string(id)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, engine.ErrNotFound)
	}
	return jb, nil
}

// Pause stops all transfer for a job.
func (e *Engine) Pause(ctx context.Context, id engine.ID) error {
	jb, err := e.lookup(id)
	if err != nil {
		return err
	}
	if err := e.store.SetPaused(ctx, jb.InfoHash, true); err != nil {
		return err
	}
	jb.t.DisallowDataDownload()
	jb.t.DisallowDataUpload()

	e.mu.Lock()
	jb.Paused = true
	e.mu.Unlock()
	return nil
}

// Resume lets a paused job transfer again.
func (e *Engine) Resume(ctx context.Context, id engine.ID) error {
	jb, err := e.lookup(id)
	if err != nil {
		return err
	}
	if err := e.store.SetPaused(ctx, jb.InfoHash, false); err != nil {
		return err
	}

	e.mu.Lock()
	jb.Paused = false
	e.mu.Unlock()

	jb.t.AllowDataUpload()
	select {
	case <-jb.t.GotInfo():
		jb.t.AllowDataDownload()
	default:
		// activate enables downloads once the selection can be applied
	}
	return nil
}

// Delete drops a job and removes its folder from disk.
func (e *Engine) Delete(ctx context.Context, id engine.ID) error {
	jb, err := e.lookup(id)
	if err != nil {
		return err
	}
	if err := e.store.Delete(ctx, jb.InfoHash); err != nil && !errors.Is(err, engine.ErrNotFound) {
		return err
	}

	e.mu.Lock()
	delete(e.jobs, jb.InfoHash)
	e.mu.Unlock()

	jb.t.Drop()
	if err := os.RemoveAll(jb.TargetDir); err != nil {
		return fmt.Errorf("removing %s: %w", jb.TargetDir, err)
	}
	e.log.WithField("hash", jb.InfoHash).Info("torrent deleted")
	return nil
}

// Close stops the client and closes the job store.
func (e *Engine) Close() error {
	var errs []error
	errs = append(errs, e.client.Close()...)
	if err := e.completion.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
