package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLite stores snapshots in two tables of a single database file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and ensures its schema.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		path = "weathermesh.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("snapshot: create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open sqlite: %w", err)
	}
	// One writer at a time; sqlite serialises anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			station_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS station_index (
			station_id TEXT PRIMARY KEY
		)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("snapshot: create schema: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Driver() Driver { return DriverSQLite }

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) WriteSnapshot(ctx context.Context, id string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots(station_id, payload) VALUES(?, ?)
		 ON CONFLICT(station_id) DO UPDATE SET payload=excluded.payload`, id, data)
	if err != nil {
		return fmt.Errorf("snapshot: upsert %q: %w", id, err)
	}
	return nil
}

func (s *SQLite) ReadSnapshot(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE station_id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: select %q: %w", id, err)
	}
	return data, nil
}

func (s *SQLite) DeleteSnapshot(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE station_id = ?`, id); err != nil {
		return fmt.Errorf("snapshot: delete %q: %w", id, err)
	}
	return nil
}

// WriteIndex replaces the index in a single transaction.
func (s *SQLite) WriteIndex(ctx context.Context, ids []string) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("snapshot: begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM station_index`); err != nil {
		return fmt.Errorf("snapshot: clear index: %w", err)
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `INSERT INTO station_index(station_id) VALUES(?)`, id); err != nil {
			return fmt.Errorf("snapshot: index %q: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("snapshot: commit index: %w", err)
	}
	return nil
}

func (s *SQLite) ReadIndex(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT station_id FROM station_index ORDER BY station_id`)
	if err != nil {
		return nil, fmt.Errorf("snapshot: select index: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("snapshot: scan index: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLite) Purge(ctx context.Context) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("snapshot: begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range []string{`DELETE FROM snapshots`, `DELETE FROM station_index`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("snapshot: purge: %w", err)
		}
	}
	return tx.Commit()
}
