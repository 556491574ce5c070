// Package state keeps the history of applied responses in a SQLite file
// under the workspace metadata directory, so a run can be listed,
// re-annotated or reverted later.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no matching entry exists.
var ErrNotFound = errors.New("history entry not found")

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id         TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	original   TEXT NOT NULL,
	annotated  TEXT NOT NULL,
	commit_id  TEXT NOT NULL DEFAULT '',
	drift      TEXT NOT NULL DEFAULT '',
	reverted   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS entries_created ON entries(created_at);
`

// Entry is one applied response.
type Entry struct {
	ID        string
	CreatedAt time.Time
	Original  string
	// Annotated is the response with failure blocks appended.
	Annotated string
	CommitID  string
	// Drift lists the paths folded into the commit from outside tagapply.
	Drift    []string
	Reverted bool
}

// Store handles the lifecycle of the history database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("could not create state directory: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save records e. CreatedAt is filled in when zero.
func (s *Store) Save(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return errors.New("history entry needs an id")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (id, created_at, original, annotated, commit_id, drift, reverted)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CreatedAt.UnixNano(), e.Original, e.Annotated, e.CommitID,
		strings.Join(e.Drift, "\n"), e.Reverted)
	if err != nil {
		return fmt.Errorf("save history entry: %w", err)
	}
	return nil
}

// List returns up to n entries, newest first. n <= 0 returns all.
func (s *Store) List(ctx context.Context, n int) ([]Entry, error) {
	query := `SELECT id, created_at, original, annotated, commit_id, drift, reverted
		FROM entries ORDER BY created_at DESC, rowid DESC`
	var args []any
	if n > 0 {
		query += ` LIMIT ?`
		args = append(args, n)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Last returns the newest entry with a commit that has not been reverted.
func (s *Store) Last(ctx context.Context) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, original, annotated, commit_id, drift, reverted
		 FROM entries WHERE reverted = 0 AND commit_id != ''
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`)
	e, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// MarkReverted flags the entry with id as undone.
func (s *Store) MarkReverted(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE entries SET reverted = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark reverted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(r scanner) (Entry, error) {
	var e Entry
	var created int64
	var drift string
	if err := r.Scan(&e.ID, &created, &e.Original, &e.Annotated, &e.CommitID, &drift, &e.Reverted); err != nil {
		return Entry{}, err
	}
	e.CreatedAt = time.Unix(0, created)
	if drift != "" {
		e.Drift = strings.Split(drift, "\n")
	}
	return e, nil
}
