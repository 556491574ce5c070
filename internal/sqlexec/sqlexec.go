// Package sqlexec runs SQL directives against the workspace database and
// records them as migration files.
package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

// ErrNoExecutor is reported when a SQL directive arrives but no database
// is configured.
var ErrNoExecutor = errors.New("no SQL database configured")

// Executor runs a query, which may hold several statements.
type Executor interface {
	Exec(ctx context.Context, query string) (int64, error)
	Close() error
}

// SQLite executes queries against a local SQLite file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &SQLite{db: db}, nil
}

// DB exposes the underlying handle.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// Exec runs query in a transaction and returns the rows affected by its
// last statement.
func (s *SQLite) Exec(ctx context.Context, query string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	res, err := tx.ExecContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

var (
	migrationName = regexp.MustCompile(`^(\d{4})_.*\.sql$`)
	slugChars     = regexp.MustCompile(`[^a-z0-9]+`)
)

// Slug turns a description into a file-name fragment.
func Slug(description string) string {
	s := slugChars.ReplaceAllString(strings.ToLower(description), "_")
	s = strings.Trim(s, "_")
	if len(s) > 48 {
		s = strings.TrimRight(s[:48], "_")
	}
	if s == "" {
		return "migration"
	}
	return s
}

// WriteMigration stores query as the next numbered file in dir and
// returns the path written.
func WriteMigration(dir, query, description string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create migrations directory: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var numbers []int
	for _, e := range entries {
		if m := migrationName.FindStringSubmatch(e.Name()); m != nil {
			n, _ := strconv.Atoi(m[1])
			numbers = append(numbers, n)
		}
	}
	sort.Ints(numbers)
	next := 0
	if len(numbers) > 0 {
		next = numbers[len(numbers)-1] + 1
	}

	path := filepath.Join(dir, fmt.Sprintf("%04d_%s.sql", next, Slug(description)))
	content := strings.TrimRight(query, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", err
	}
	return path, nil
}
