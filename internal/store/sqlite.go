// Package store persists sync counters and message batch receipts in SQLite.
// The in-memory SyncState resets when the browser process exits; the counters
// here survive restarts so operators keep an accurate sync history.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// SQLiteStore implements core.SyncStore with SQLite storage.
type SQLiteStore struct {
	dbPath string
	db     *sql.DB
}

// NewSQLiteStore creates a new SQLite-based sync store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	s := &SQLiteStore{dbPath: dbPath}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Single writer; this store sees one control loop.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	s.db = db

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return err
	}

	var applied int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = 1`).Scan(&applied)
	if err != nil {
		return err
	}
	if applied > 0 {
		return nil
	}

	if _, err := s.db.Exec(migrationV1); err != nil {
		return fmt.Errorf("applying migration 1: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO schema_migrations (version) VALUES (1)`)
	return err
}

// LoadSyncState returns the persisted counters for an owner. A missing row
// returns a zero snapshot.
func (s *SQLiteStore) LoadSyncState(ctx context.Context, ownerID string) (*time.Time, int, error) {
	var lastSyncAt sql.NullTime
	var syncCount int
	err := s.db.QueryRowContext(ctx,
		`SELECT last_sync_at, sync_count FROM sync_state WHERE owner_id = ?`, ownerID,
	).Scan(&lastSyncAt, &syncCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("loading sync state: %w", err)
	}
	if lastSyncAt.Valid {
		t := lastSyncAt.Time
		return &t, syncCount, nil
	}
	return nil, syncCount, nil
}

// RecordSyncCompletion upserts the owner's counters and returns the new count.
func (s *SQLiteStore) RecordSyncCompletion(ctx context.Context, ownerID string, completedAt time.Time) (int, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_state (owner_id, last_sync_at, sync_count, updated_at)
		 VALUES (?, ?, 1, CURRENT_TIMESTAMP)
		 ON CONFLICT(owner_id) DO UPDATE SET
		   last_sync_at = excluded.last_sync_at,
		   sync_count = sync_state.sync_count + 1,
		   updated_at = CURRENT_TIMESTAMP`,
		ownerID, completedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("recording sync completion: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT sync_count FROM sync_state WHERE owner_id = ?`, ownerID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("reading sync count: %w", err)
	}
	return count, nil
}

// AppendMessageBatch journals receipt of a webhook message batch.
func (s *SQLiteStore) AppendMessageBatch(ctx context.Context, ownerID string, count int, receivedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO message_batches (owner_id, message_count, received_at) VALUES (?, ?, ?)`,
		ownerID, count, receivedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("journaling message batch: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
