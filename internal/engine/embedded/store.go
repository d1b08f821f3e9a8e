package embedded

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/litescript/ls-torrent-deck/internal/engine"
	_ "modernc.org/sqlite"
)

// Job is a persisted download job.
type Job struct {
	InfoHash  string
	Name      string
	Magnet    string
	TargetDir string
	OnlyFiles []int
	Paused    bool
	AddedAt   time.Time
	// MetaInfo is the bencoded .torrent, empty until the info is known
	MetaInfo []byte
}

// BasePath is the directory holding the job folder.
func (j Job) BasePath() string {
	return filepath.Dir(filepath.Clean(j.TargetDir))
}

// Store keeps jobs in SQLite so they survive restarts.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the job database at dbPath.
func OpenStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		info_hash TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		magnet TEXT NOT NULL DEFAULT '',
		target_dir TEXT NOT NULL,
		only_files TEXT NOT NULL DEFAULT '[]',
		paused INTEGER NOT NULL DEFAULT 0,
		added_at DATETIME NOT NULL,
		metainfo BLOB
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Put inserts or replaces a job.
func (s *Store) Put(ctx context.Context, j Job) error {
	only, err := json.Marshal(j.OnlyFiles)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (info_hash, name, magnet, target_dir, only_files, paused, added_at, metainfo)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(info_hash) DO UPDATE SET
			name = excluded.name,
			magnet = excluded.magnet,
			target_dir = excluded.target_dir,
			only_files = excluded.only_files,
			paused = excluded.paused,
			metainfo = excluded.metainfo`,
		j.InfoHash, j.Name, j.Magnet, j.TargetDir, string(only), j.Paused, j.AddedAt.UTC(), j.MetaInfo)
	if err != nil {
		return fmt.Errorf("saving job %s: %w", j.InfoHash, err)
	}
	return nil
}

// SetPaused records the pause flag of a job.
func (s *Store) SetPaused(ctx context.Context, infoHash string, paused bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET paused = ? WHERE info_hash = ?`, paused, infoHash)
	if err != nil {
		return err
	}
	return expectRow(res, infoHash)
}

// SetMetaInfo stores the torrent info once a magnet has resolved.
func (s *Store) SetMetaInfo(ctx context.Context, infoHash, name string, mi []byte) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET name = ?, metainfo = ? WHERE info_hash = ?`, name, mi, infoHash)
	if err != nil {
		return err
	}
	return expectRow(res, infoHash)
}

// Delete removes a job.
func (s *Store) Delete(ctx context.Context, infoHash string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE info_hash = ?`, infoHash)
	if err != nil {
		return err
	}
	return expectRow(res, infoHash)
}

// Get loads one job.
func (s *Store) Get(ctx context.Context, infoHash string) (Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT info_hash, name, magnet, target_dir, only_files, paused, added_at, metainfo
		FROM jobs WHERE info_hash = ?`, infoHash)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, engine.ErrNotFound
	}
	return j, err
}

// List returns all jobs, oldest first.
func (s *Store) List(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT info_hash, name, magnet, target_dir, only_files, paused, added_at, metainfo
		FROM jobs ORDER BY added_at, info_hash`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (Job, error) {
	var (
		j    Job
		only string
	)
	if err := sc.Scan(&j.InfoHash, &j.Name, &j.Magnet, &j.TargetDir, &only, &j.Paused, &j.AddedAt, &j.MetaInfo); err != nil {
		return Job{}, err
	}
	if err := json.Unmarshal([]byte(only), &j.OnlyFiles); err != nil {
		return Job{}, fmt.Errorf("decoding file selection of %s: %w", j.InfoHash, err)
	}
	return j, nil
}

func expectRow(res sql.Result, infoHash string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", infoHash, engine.ErrNotFound)
	}
	return nil
}
