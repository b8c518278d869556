// Package store keeps an append-only SQLite trail of login attempts. Only
// the client address, time and outcome are written; passwords and chat
// content never reach the database.
//
// Schema changes go through the ordered migrations slice. Append new
// statements; never edit or reorder existing ones.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Outcome is the result of one login attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeLocked  Outcome = "locked"
)

// maxAttemptRows bounds the table; older rows are pruned on insert.
const maxAttemptRows = 50000

var migrations = []string{
	// v1 login attempts
	`CREATE TABLE IF NOT EXISTS login_attempts (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		addr       TEXT NOT NULL,
		outcome    TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	// v2 lookups by address and time
	`CREATE INDEX IF NOT EXISTS idx_login_attempts_addr ON login_attempts(addr, created_at)`,
}

// Store wraps the audit database.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (or creates) the SQLite database at path and applies pending
// migrations. ":memory:" gives a throwaway database for tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serialises writes
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		logger.Warn("audit busy_timeout", "err", err)
	}

	s := &Store{db: db, log: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_migrations(version) VALUES(?)`, v); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		s.log.Debug("applied audit migration", "version", v)
	}
	return nil
}

// RecordAttempt appends one login attempt.
func (s *Store) RecordAttempt(ctx context.Context, addr string, outcome Outcome, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO login_attempts(addr, outcome, created_at) VALUES(?,?,?)`,
		addr, string(outcome), at.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`DELETE FROM login_attempts WHERE id <= (SELECT MAX(id) FROM login_attempts) - ?`,
		maxAttemptRows,
	)
	if err != nil {
		return fmt.Errorf("prune attempts: %w", err)
	}
	return nil
}

// RecentFailures counts failed and locked-out attempts from addr at or
// after since.
func (s *Store) RecentFailures(ctx context.Context, addr string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM login_attempts WHERE addr = ? AND outcome != ? AND created_at >= ?`,
		addr, string(OutcomeSuccess), since.UnixMilli(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count failures: %w", err)
	}
	return n, nil
}
