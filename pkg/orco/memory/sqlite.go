package memory

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"

	_ "modernc.org/sqlite" // pure Go sqlite driver
)

// SQLiteStore persists subject records and locks to SQLite. Suitable for
// single-process production use; locking is implemented with a dedicated
// table rather than SQLite's own file locking, so Lock/Unlock semantics
// match Memory's contract regardless of journal mode.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// NewSQLiteStore opens (creating if necessary) a SQLite-backed store at path.
// Use ":memory:" for a throwaway store, e.g. in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			f, createErr := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
			if createErr == nil {
				f.Close()
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("memory: open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			subject TEXT PRIMARY KEY,
			data BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: create records table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS locks (
			subject TEXT PRIMARY KEY,
			token TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: create locks table: %w", err)
	}

	if path != ":memory:" {
		os.Chmod(path, 0600)
	}

	return &SQLiteStore{db: db}, nil
}

// Read implements Memory.
func (s *SQLiteStore) Read(ctx context.Context, subject string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("memory: store closed")
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM records WHERE subject = ?`, subject).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: read subject %s: %w", subject, err)
	}
	return data, nil
}

// Write implements Memory with a transactional optimistic-concurrency check.
func (s *SQLiteStore) Write(ctx context.Context, subject string, newRecord, prevRecord []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("memory: store closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("memory: begin write tx: %w", err)
	}
	defer tx.Rollback()

	var current []byte
	err = tx.QueryRowContext(ctx, `SELECT data FROM records WHERE subject = ?`, subject).Scan(&current)
	exists := !errors.Is(err, sql.ErrNoRows)
	if err != nil && exists {
		return fmt.Errorf("memory: read for write check: %w", err)
	}

	if prevRecord == nil {
		if exists {
			return fmt.Errorf("memory: write conflict: subject %s already has a record", subject)
		}
	} else if !exists || !bytes.Equal(current, prevRecord) {
		return fmt.Errorf("memory: write conflict: subject %s record changed since read", subject)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO records (subject, data) VALUES (?, ?)
		ON CONFLICT(subject) DO UPDATE SET data = excluded.data
	`, subject, newRecord); err != nil {
		return fmt.Errorf("memory: write subject %s: %w", subject, err)
	}

	return tx.Commit()
}

// Lock implements Memory.
func (s *SQLiteStore) Lock(ctx context.Context, subject, token string) (LockResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NotAcquired, fmt.Errorf("memory: store closed")
	}

	var holder string
	err := s.db.QueryRowContext(ctx, `SELECT token FROM locks WHERE subject = ?`, subject).Scan(&holder)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx, `INSERT INTO locks (subject, token) VALUES (?, ?)`, subject, token); err != nil {
			return NotAcquired, fmt.Errorf("memory: acquire lock: %w", err)
		}
		return Acquired, nil
	case err != nil:
		return NotAcquired, fmt.Errorf("memory: lock lookup: %w", err)
	case holder == token:
		return AlreadyAcquired, nil
	default:
		return NotAcquired, nil
	}
}

// Unlock implements Memory.
func (s *SQLiteStore) Unlock(ctx context.Context, subject, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.db.ExecContext(ctx, `DELETE FROM locks WHERE subject = ? AND token = ?`, subject, token)
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
