// Package workspace implements the mutable application state that generated
// scripts operate on: a SQLite-backed design-document store of elements and
// parameters. Every script runs inside an all-or-nothing apply scope; a
// mutation becomes observable only when its scope commits.
package workspace

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // CGo-free SQLite driver

	"draftpilot/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS elements (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	category TEXT NOT NULL,
	name     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS parameters (
	element_id INTEGER NOT NULL,
	name       TEXT NOT NULL,
	value      TEXT NOT NULL,
	PRIMARY KEY (element_id, name),
	FOREIGN KEY (element_id) REFERENCES elements(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_elements_category ON elements(category);
`

// SQLite is a design-document workspace stored in a SQLite database.
type SQLite struct {
	db     *sql.DB
	logger *logx.Logger

	mu     sync.Mutex
	active bool // an apply scope is open
}

// Open opens (creating if necessary) a workspace database at path.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		path,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping workspace database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize workspace schema: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &SQLite{
		db:     db,
		logger: logx.NewLogger("workspace"),
	}, nil
}

// Begin opens an apply/rollback scope around the workspace. The scope is not
// re-entrant: a second Begin before Commit or Rollback is an error.
func (w *SQLite) Begin(ctx context.Context) (*Scope, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.active {
		return nil, fmt.Errorf("an apply scope is already open")
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin apply scope: %w", err)
	}

	w.active = true
	return &Scope{ws: w, tx: tx}, nil
}

// Close closes the workspace database.
func (w *SQLite) Close() error {
	return w.db.Close()
}

// Scope is one open apply/rollback boundary. All script mutations go through
// its transaction and become observable only on Commit.
type Scope struct {
	ws *SQLite
	tx *sql.Tx

	// selection is the set of element IDs scripts marked as selected. It is
	// ephemeral UI-style state, not persisted with the document.
	selection []int64

	done bool
}

// Commit makes the scope's mutations observable.
func (s *Scope) Commit() error {
	if err := s.finish(); err != nil {
		return err
	}
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit apply scope: %w", err)
	}
	s.ws.logger.Debug("apply scope committed")
	return nil
}

// Rollback fully reverts the scope's mutations.
func (s *Scope) Rollback() error {
	if err := s.finish(); err != nil {
		return err
	}
	if err := s.tx.Rollback(); err != nil {
		return fmt.Errorf("failed to roll back apply scope: %w", err)
	}
	s.ws.logger.Debug("apply scope rolled back")
	return nil
}

// Selection returns the element IDs scripts selected during this scope.
func (s *Scope) Selection() []int64 {
	return append([]int64(nil), s.selection...)
}

func (s *Scope) finish() error {
	if s.done {
		return fmt.Errorf("apply scope already closed")
	}
	s.done = true

	s.ws.mu.Lock()
	s.ws.active = false
	s.ws.mu.Unlock()
	return nil
}

// Element is one row of the design document.
type Element struct {
	ID       int64
	Category string
	Name     string
}

// CountElements returns the number of elements visible outside any open
// scope. Intended for tests and reporting.
func (w *SQLite) CountElements(ctx context.Context) (int, error) {
	var n int
	if err := w.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM elements`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count elements: %w", err)
	}
	return n, nil
}

// GetParam returns a committed parameter value, or ok=false if unset.
func (w *SQLite) GetParam(ctx context.Context, elementID int64, name string) (string, bool, error) {
	var value string
	err := w.db.QueryRowContext(ctx,
		`SELECT value FROM parameters WHERE element_id = ? AND name = ?`,
		elementID, name,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read parameter: %w", err)
	}
	return value, true, nil
}

// InsertElement inserts a committed element directly, bypassing any scope.
// Intended for seeding test fixtures and bootstrap data.
func (w *SQLite) InsertElement(ctx context.Context, category, name string) (int64, error) {
	res, err := w.db.ExecContext(ctx,
		`INSERT INTO elements (category, name) VALUES (?, ?)`, category, name)
	if err != nil {
		return 0, fmt.Errorf("failed to insert element: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read element id: %w", err)
	}
	return id, nil
}
