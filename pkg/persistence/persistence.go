// Package persistence provides the SQLite-backed run log: one row per
// pipeline run, one per attempt, plus an on-disk archive of successfully
// executed scripts.
package persistence

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // CGo-free SQLite driver

	"draftpilot/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	request    TEXT NOT NULL,
	outcome    TEXT NOT NULL,
	output     TEXT NOT NULL DEFAULT '',
	last_error TEXT NOT NULL DEFAULT '',
	last_code  TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS attempts (
	run_id        TEXT NOT NULL,
	idx           INTEGER NOT NULL,
	failure_kind  TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	ok            INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (run_id, idx),
	FOREIGN KEY (run_id) REFERENCES runs(id)
);
`

// Run is one persisted pipeline run.
type Run struct {
	ID        string
	Request   string
	Outcome   string
	Output    string
	LastError string
	LastCode  string
}

// Attempt is one persisted attempt within a run.
type Attempt struct {
	RunID       string
	Index       int
	FailureKind string
	Error       string
	OK          bool
}

// Store is the run log.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (creating if necessary) the run log database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		path,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping run log: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize run log schema: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db, logger: logx.NewLogger("persistence")}, nil
}

// Close closes the run log database.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// RecordRun inserts or replaces the row for a completed run.
func (s *Store) RecordRun(run Run) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO runs (id, request, outcome, output, last_error, last_code)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Request, run.Outcome, run.Output, run.LastError, run.LastCode,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// RecordAttempt inserts the row for one attempt.
func (s *Store) RecordAttempt(a Attempt) error {
	ok := 0
	if a.OK {
		ok = 1
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO attempts (run_id, idx, failure_kind, error, ok)
		 VALUES (?, ?, ?, ?, ?)`,
		a.RunID, a.Index, a.FailureKind, a.Error, ok,
	)
	if err != nil {
		return fmt.Errorf("failed to record attempt %d of run %s: %w", a.Index, a.RunID, err)
	}
	return nil
}

// GetRun loads one run by ID.
func (s *Store) GetRun(id string) (Run, error) {
	var run Run
	err := s.db.QueryRow(
		`SELECT id, request, outcome, output, last_error, last_code FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.Request, &run.Outcome, &run.Output, &run.LastError, &run.LastCode)
	if err != nil {
		return Run{}, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	return run, nil
}

// CountAttempts returns the number of recorded attempts for a run.
func (s *Store) CountAttempts(runID string) (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM attempts WHERE run_id = ?`, runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return n, nil
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// slugify turns a request into a filesystem-safe filename stem.
func slugify(request string) string {
	slug := slugRe.ReplaceAllString(strings.ToLower(request), "_")
	slug = strings.Trim(slug, "_")
	if len(slug) > 80 {
		slug = slug[:80]
	}
	if slug == "" {
		slug = "script"
	}
	return slug
}

// SaveSuccessfulScript archives a script that executed successfully under
// dir, named after the request plus a timestamp. Returns the written path.
func (s *Store) SaveSuccessfulScript(dir, request, code string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive dir: %w", err)
	}

	name := fmt.Sprintf("%s_%s.star", slugify(request), time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return "", fmt.Errorf("failed to archive script: %w", err)
	}

	s.logger.Debug("archived successful script to %s", path)
	return path, nil
}
