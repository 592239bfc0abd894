// Package store persists the client's durable state: the session marker and
// the pending-referral slot.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_marker (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	connected INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS pending_referral (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	referrer TEXT NOT NULL
);
`

// Store is the SQLite-backed implementation of SessionStore and
// ReferralStore. A single file plays the role browser local storage plays for
// the web client.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the SQLite file, creating it and its schema as needed.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// MarkConnected records that a wallet session is active.
func (s *Store) MarkConnected(ctx context.Context) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO session_marker (id, connected) VALUES (1, 1)
		 ON CONFLICT(id) DO UPDATE SET connected = 1`)
	if err != nil {
		return fmt.Errorf("failed to mark session connected: %w", err)
	}
	return nil
}

// ClearConnected forgets the session marker.
func (s *Store) ClearConnected(ctx context.Context) error {
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM session_marker WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("failed to clear session marker: %w", err)
	}
	return nil
}

// WasConnected reports whether a prior session was marked active.
func (s *Store) WasConnected(ctx context.Context) (bool, error) {
	var connected int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT connected FROM session_marker WHERE id = 1`).Scan(&connected)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read session marker: %w", err)
	}
	return connected != 0, nil
}

// Put stores the referrer, overwriting any previous capture.
func (s *Store) Put(ctx context.Context, referrer string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO pending_referral (id, referrer) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET referrer = excluded.referrer`, referrer)
	if err != nil {
		return fmt.Errorf("failed to store referral: %w", err)
	}
	return nil
}

// Take reads and deletes the pending referral in a single transaction.
func (s *Store) Take(ctx context.Context) (string, bool, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("failed to begin take: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var referrer string
	err = tx.QueryRowContext(ctx,
		`SELECT referrer FROM pending_referral WHERE id = 1`).Scan(&referrer)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read referral: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_referral WHERE id = 1`); err != nil {
		return "", false, fmt.Errorf("failed to delete referral: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("failed to commit take: %w", err)
	}
	return referrer, true, nil
}

// Peek reads the pending referral without consuming it.
func (s *Store) Peek(ctx context.Context) (string, bool, error) {
	var referrer string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT referrer FROM pending_referral WHERE id = 1`).Scan(&referrer)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read referral: %w", err)
	}
	return referrer, true, nil
}
