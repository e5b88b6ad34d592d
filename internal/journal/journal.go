// Package journal records import runs and their per-file outcomes in a local
// SQLite database, so an operator can see which files of a dump were loaded
// and how long each took.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Status values stored for runs and files.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// ErrRunNotFound is returned when a run ID is not in the journal.
var ErrRunNotFound = errors.New("journal: run not found")

// Run is one invocation of the importer.
type Run struct {
	ID         string
	Job        string
	Directory  string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Status     string
	Error      string
}

// File is the outcome of loading one dump file.
type File struct {
	RunID    string
	File     string
	Dataset  string
	Table    string
	Rows     int64
	Bytes    int64
	Digest   uint64
	Duration time.Duration
	Status   string
	Error    string
}

// Journal is a SQLite-backed run journal.
type Journal struct {
	db *sql.DB
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		job TEXT NOT NULL,
		directory TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS files (
		run_id TEXT NOT NULL REFERENCES runs(id),
		seq INTEGER NOT NULL,
		file TEXT NOT NULL,
		dataset TEXT NOT NULL,
		table_name TEXT NOT NULL,
		rows INTEGER NOT NULL,
		bytes INTEGER NOT NULL,
		digest TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
}

// Open opens (or creates) the journal at path and returns it with a close
// function. path may be ":memory:".
func Open(ctx context.Context, path string) (*Journal, func(), error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, fmt.Errorf("journal: path must not be empty")
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("journal: open: %w", err)
	}
	// one writer; also keeps a :memory: database on a single connection
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("journal: ping: %w", err)
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("journal: migrate: %w", err)
		}
	}

	closeFn := func() { db.Close() }
	return &Journal{db: db}, closeFn, nil
}

// StartRun inserts run with status running.
func (j *Journal) StartRun(ctx context.Context, run Run) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, job, directory, started_at, status) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Job, run.Directory, formatTime(run.StartedAt), StatusRunning)
	if err != nil {
		return fmt.Errorf("journal: start run %s: %w", run.ID, err)
	}
	return nil
}

// RecordFile appends f to its run. Files keep the order they were recorded in.
func (j *Journal) RecordFile(ctx context.Context, f File) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO files (run_id, seq, file, dataset, table_name, rows, bytes, digest, duration_ms, status, error)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM files WHERE run_id = ?), ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.RunID, f.RunID, f.File, f.Dataset, f.Table, f.Rows, f.Bytes,
		formatDigest(f.Digest), f.Duration.Milliseconds(), statusOr(f.Status, f.Error), f.Error)
	if err != nil {
		return fmt.Errorf("journal: record file %s: %w", f.File, err)
	}
	return nil
}

// FinishRun marks the run finished. A nil runErr means success.
func (j *Journal) FinishRun(ctx context.Context, runID string, finishedAt time.Time, runErr error) error {
	status, msg := StatusSuccess, ""
	if runErr != nil {
		status, msg = StatusFailure, runErr.Error()
	}
	res, err := j.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE id = ?`,
		formatTime(finishedAt), status, msg, runID)
	if err != nil {
		return fmt.Errorf("journal: finish run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("journal: finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// Runs returns up to limit runs, newest first. limit <= 0 returns all.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT id, job, directory, started_at, finished_at, status, error FROM runs ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Job, &r.Directory, &started, &finished, &r.Status, &r.Error); err != nil {
			return nil, fmt.Errorf("journal: scan run: %w", err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: list runs: %w", err)
	}
	return out, nil
}

// Files returns the files of runID in the order they were recorded.
func (j *Journal) Files(ctx context.Context, runID string) ([]File, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT file, dataset, table_name, rows, bytes, digest, duration_ms, status, error
		 FROM files WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("journal: list files: %w", err)
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		f := File{RunID: runID}
		var digest string
		var ms int64
		if err := rows.Scan(&f.File, &f.Dataset, &f.Table, &f.Rows, &f.Bytes, &digest, &ms, &f.Status, &f.Error); err != nil {
			return nil, fmt.Errorf("journal: scan file: %w", err)
		}
		if f.Digest, err = strconv.ParseUint(digest, 16, 64); err != nil {
			return nil, fmt.Errorf("journal: digest %q: %w", digest, err)
		}
		f.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: list files: %w", err)
	}
	return out, nil
}

func statusOr(status, errMsg string) string {
	switch {
	case status != "":
		return status
	case errMsg != "":
		return StatusFailure
	}
	return StatusSuccess
}

// digests are unsigned 64-bit; SQLite integers are signed
func formatDigest(d uint64) string { return fmt.Sprintf("%016x", d) }

// fixed width so that text order is time order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("journal: time %q: %w", s, err)
	}
	return t, nil
}
