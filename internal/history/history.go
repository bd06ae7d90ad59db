// Package history persists a local log of deploy attempts in SQLite.
// History is best-effort: a failure to record never fails a deploy.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Status values for a recorded release.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Release is one recorded deploy attempt.
type Release struct {
	// ID is the release UUID, shared with the on-stage manifest.
	ID string
	// Project is the project slug from stagectl.yaml.
	Project string
	// Env is the environment name, empty for bare-defaults deploys.
	Env string
	// App is the registered app object name.
	App string
	// Database, Schema, Stage and Warehouse are the target coordinates.
	Database  string
	Schema    string
	Stage     string
	Warehouse string
	// FilesUploaded and FilesRemoved count file operations.
	FilesUploaded int
	FilesRemoved  int
	// BytesUploaded sums uploaded file sizes.
	BytesUploaded int64
	// Status is success or failed.
	Status string
	// Error holds the failure message for failed releases.
	Error string
	// StartedAt and FinishedAt bound the deploy run.
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the wall time the deploy took.
func (r *Release) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store persists releases to a SQLite database file.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database at path, creating parent
// directories as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them; a
	// PRAGMA via db.Exec only reaches one connection.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	// SQLite allows one writer at a time; keep the pool small so writers
	// queue in Go instead of fighting over the file lock.
	db.SetMaxOpenConns(2)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history database: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS releases (
			id             TEXT PRIMARY KEY,
			project        TEXT NOT NULL DEFAULT '',
			env            TEXT NOT NULL DEFAULT '',
			app            TEXT NOT NULL DEFAULT '',
			database_name  TEXT NOT NULL DEFAULT '',
			schema_name    TEXT NOT NULL DEFAULT '',
			stage_name     TEXT NOT NULL DEFAULT '',
			warehouse      TEXT NOT NULL DEFAULT '',
			files_uploaded INTEGER NOT NULL DEFAULT 0,
			files_removed  INTEGER NOT NULL DEFAULT 0,
			bytes_uploaded INTEGER NOT NULL DEFAULT 0,
			status         TEXT NOT NULL,
			error          TEXT NOT NULL DEFAULT '',
			started_at     TEXT NOT NULL,
			finished_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_releases_env_app ON releases(env, app);
		CREATE INDEX IF NOT EXISTS idx_releases_started ON releases(started_at);
	`)
	return err
}

// Record inserts one release row.
func (s *Store) Record(ctx context.Context, r *Release) error {
	if r == nil {
		return fmt.Errorf("release is nil")
	}
	if r.ID == "" {
		return fmt.Errorf("release id is empty")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO releases (id, project, env, app, database_name, schema_name, stage_name, warehouse,
			files_uploaded, files_removed, bytes_uploaded, status, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Project, r.Env, r.App, r.Database, r.Schema, r.Stage, r.Warehouse,
		r.FilesUploaded, r.FilesRemoved, r.BytesUploaded, r.Status, r.Error,
		r.StartedAt.UTC().Format(time.RFC3339Nano), r.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record release %s: %w", r.ID, err)
	}
	return nil
}

// Filter narrows List results.
type Filter struct {
	// Env keeps only releases for this environment when non-empty.
	Env string
	// App keeps only releases for this app when non-empty.
	App string
	// Limit caps the number of rows; zero means 50.
	Limit int
}

const releaseColumns = `id, project, env, app, database_name, schema_name, stage_name, warehouse,
	files_uploaded, files_removed, bytes_uploaded, status, error, started_at, finished_at`

// List returns releases most recent first.
func (s *Store) List(ctx context.Context, f Filter) ([]Release, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + releaseColumns + ` FROM releases WHERE 1=1`
	var args []any
	if f.Env != "" {
		query += ` AND env = ?`
		args = append(args, f.Env)
	}
	if f.App != "" {
		query += ` AND app = ?`
		args = append(args, f.App)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var releases []Release
	for rows.Next() {
		r, err := scanRelease(rows)
		if err != nil {
			return nil, err
		}
		releases = append(releases, r)
	}
	return releases, rows.Err()
}

// Latest returns the most recent successful release for an env/app pair,
// or nil when none exists.
func (s *Store) Latest(ctx context.Context, env, app string) (*Release, error) {
	releases, err := s.List(ctx, Filter{Env: env, App: app, Limit: 20})
	if err != nil {
		return nil, err
	}
	for i := range releases {
		if releases[i].Status == StatusSuccess {
			return &releases[i], nil
		}
	}
	return nil, nil
}

// Prune deletes all but the newest keep releases.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM releases WHERE id NOT IN (
			SELECT id FROM releases ORDER BY started_at DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune releases: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count pruned releases: %w", err)
	}
	return n, nil
}

func scanRelease(rows *sql.Rows) (Release, error) {
	var r Release
	var started, finished string
	err := rows.Scan(&r.ID, &r.Project, &r.Env, &r.App, &r.Database, &r.Schema, &r.Stage, &r.Warehouse,
		&r.FilesUploaded, &r.FilesRemoved, &r.BytesUploaded, &r.Status, &r.Error, &started, &finished)
	if err != nil {
		return Release{}, fmt.Errorf("scan release row: %w", err)
	}
	r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
	return r, nil
}
