// Package store is the transactional persistence layer for the orchestrator:
// Task, Workspace, Unit, Chat, History and AuditsLog rows behind a single
// SQLite connection, with admission/review queries expressed as row-level
// claims inside BEGIN IMMEDIATE transactions.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	schemaVersionV1  = 1
	schemaChecksumV1 = "orc-v1-2026-07-tasks-workspace-units-chat-history-audits"

	schemaVersionLatest  = schemaVersionV1
	schemaChecksumLatest = schemaChecksumV1
)

// Store wraps the single *sql.DB connection used for all repository
// operations. SQLite is opened with MaxOpenConns(1): own's
// store does this to avoid cross-connection lock contention on a
// single-writer database, and we keep that choice since admission and
// review both rely on BEGIN IMMEDIATE semantics that assume one writer.
type Store struct {
	db *sql.DB
}

// DefaultDBPath mirrors convention's of a dotfile under the
// user's home directory.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".taskorc", "taskorc.db")
}

// Open creates (or re-opens) the SQLite-backed store at path, configuring
// WAL + synchronous=FULL pragmas and applying schema migrations.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultDBPath()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.configurePragmas(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) configurePragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
	}
	for _, q := range pragmas {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("set pragma %q: %w", q, err)
		}
	}
	return nil
}

// retryOnBusy retries f when SQLite reports BUSY or LOCKED, with bounded
// jittered exponential backoff. Grounded on
// internal/persistence/store.go's retryOnBusy.
func retryOnBusy(ctx context.Context, maxRetries int, f func() error) error {
	const baseDelay = 50 * time.Millisecond
	const maxDelay = 500 * time.Millisecond

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = f()
		if err == nil {
			return nil
		}
		if !isSQLiteBusy(err) {
			return err
		}
		if attempt == maxRetries {
			return err
		}
		delay := baseDelay << uint(attempt)
		if delay > maxDelay {
			delay = maxDelay
		}
		jitter := time.Duration(rand.IntN(int(delay / 2)))
		delay = delay - delay/4 + jitter

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "(5)") || // SQLITE_BUSY
		strings.Contains(msg, "(6)") // SQLITE_LOCKED
}

// immediateTx is a transaction started with BEGIN IMMEDIATE, pinned to a
// single *sql.Conn so that database/sql cannot hand the underlying
// connection to another caller mid-transaction.
type immediateTx struct {
	conn *sql.Conn
}

// beginImmediate takes SQLite's RESERVED lock immediately rather than on
// first write — the single-writer analogue of
// `SELECT ... FOR UPDATE SKIP LOCKED`: a concurrent beginImmediate blocks
// (and, via retryOnBusy at the call site, backs off and retries) instead
// of silently racing on the same rows. Grounded on the
// transactional claim pattern in internal/persistence/tasks.go, adapted
// from sql.Tx (which only issues a deferred BEGIN) to a pinned sql.Conn so
// BEGIN IMMEDIATE can be issued directly.
func (s *Store) beginImmediate(ctx context.Context) (*immediateTx, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE;"); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &immediateTx{conn: conn}, nil
}

func (t *immediateTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.conn.ExecContext(ctx, query, args...)
}

func (t *immediateTx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.conn.QueryContext(ctx, query, args...)
}

func (t *immediateTx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.conn.QueryRowContext(ctx, query, args...)
}

func (t *immediateTx) Commit(ctx context.Context) error {
	_, err := t.conn.ExecContext(ctx, "COMMIT;")
	_ = t.conn.Close()
	return err
}

func (t *immediateTx) Rollback(ctx context.Context) error {
	_, err := t.conn.ExecContext(ctx, "ROLLBACK;")
	_ = t.conn.Close()
	return err
}
