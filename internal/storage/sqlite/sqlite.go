// Package sqlite provides a SQLite-backed implementation of storage.Snapshotter.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/bailago/internal/storage"
)

// Ensure SQLiteStore implements storage.Snapshotter
var _ storage.Snapshotter = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Snapshotter using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Writers serialize anyway; one connection avoids SQLITE_BUSY on save.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot replaces all rows of kind with records inside one transaction.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, kind string, records []storage.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM snapshots WHERE kind = ?", kind); err != nil {
		return fmt.Errorf("failed to clear %s snapshot: %w", kind, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO snapshots (kind, id, seq, payload, saved_at) VALUES (?, ?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	savedAt := time.Now().Unix()
	for i, rec := range records {
		if _, err := stmt.ExecContext(ctx, kind, rec.ID, i, rec.Payload, savedAt); err != nil {
			return fmt.Errorf("failed to insert %s %s: %w", kind, rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// LoadSnapshot returns the saved records of kind ordered by seq.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context, kind string) ([]storage.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, payload FROM snapshots WHERE kind = ? ORDER BY seq",
		kind,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s snapshot: %w", kind, err)
	}
	defer rows.Close()

	records := []storage.Record{}
	for rows.Next() {
		var rec storage.Record
		if err := rows.Scan(&rec.ID, &rec.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan %s record: %w", kind, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s records: %w", kind, err)
	}

	return records, nil
}
