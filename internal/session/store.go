// Package session persists session records listed from the sensor and runs
// the maintenance process that purges deleted sessions together with their
// video assets.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/repforge/liftlink/internal/ble/protocol"
)

// ErrNotFound is returned for operations on a session id that does not
// exist.
var ErrNotFound = errors.New("session: not found")

// Session is one persisted session record. DeletedAt is the tombstone set
// by MarkDeleted; Purge removes the row for good.
type Session struct {
	ID        string
	FileName  string
	Lift      string
	Size      int64
	Mtime     time.Time
	CreatedAt time.Time
	DeletedAt *time.Time
}

// Store is the sqlite-backed session repository.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the session database at dbPath and runs the
// schema migration.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("session: open db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			file_name  TEXT NOT NULL UNIQUE,
			lift       TEXT NOT NULL,
			size       INTEGER NOT NULL,
			mtime      TEXT NOT NULL,
			created_at TEXT NOT NULL,
			deleted_at TEXT
		)
	`)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record upserts one listing item from the sensor. The lift is derived from
// the file name; re-recording a known file refreshes size and mtime.
func (s *Store) Record(ctx context.Context, item protocol.SessionItem) (*Session, error) {
	now := time.Now().UTC()
	rec := &Session{
		ID:        ulid.Make().String(),
		FileName:  item.FileName,
		Lift:      item.LiftName(),
		Size:      item.Size,
		Mtime:     time.UnixMilli(item.Mtime).UTC(),
		CreatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, file_name, lift, size, mtime, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_name) DO UPDATE SET size = excluded.size, mtime = excluded.mtime`,
		rec.ID, rec.FileName, rec.Lift, rec.Size,
		rec.Mtime.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("session: record %s: %w", item.FileName, err)
	}
	return s.GetByFileName(ctx, item.FileName)
}

// Get fetches one session by id.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, file_name, lift, size, mtime, created_at, deleted_at FROM sessions WHERE id = ?", id)
	return scanSession(row)
}

// GetByFileName fetches one session by its device file name.
func (s *Store) GetByFileName(ctx context.Context, fileName string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, file_name, lift, size, mtime, created_at, deleted_at FROM sessions WHERE file_name = ?", fileName)
	return scanSession(row)
}

// List fetches sessions, newest mtime first. Tombstoned sessions are
// excluded unless includeDeleted is set.
func (s *Store) List(ctx context.Context, includeDeleted bool) ([]*Session, error) {
	query := "SELECT id, file_name, lift, size, mtime, created_at, deleted_at FROM sessions"
	if !includeDeleted {
		query += " WHERE deleted_at IS NULL"
	}
	query += " ORDER BY mtime DESC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkDeleted tombstones a session without removing the row.
func (s *Store) MarkDeleted(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL",
		time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("session: mark deleted %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletedBefore fetches tombstoned sessions whose tombstone predates cutoff.
func (s *Store) DeletedBefore(ctx context.Context, cutoff time.Time) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_name, lift, size, mtime, created_at, deleted_at
		FROM sessions WHERE deleted_at IS NOT NULL AND deleted_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("session: deleted before: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Purge permanently deletes a session row.
func (s *Store) Purge(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("session: purge %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var rec Session
	var mtime, createdAt string
	var deletedAt sql.NullString
	err := row.Scan(&rec.ID, &rec.FileName, &rec.Lift, &rec.Size, &mtime, &createdAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: scan: %w", err)
	}
	if rec.Mtime, err = time.Parse(time.RFC3339Nano, mtime); err != nil {
		return nil, fmt.Errorf("session: parse mtime: %w", err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("session: parse created_at: %w", err)
	}
	if deletedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, deletedAt.String)
		if err != nil {
			return nil, fmt.Errorf("session: parse deleted_at: %w", err)
		}
		rec.DeletedAt = &t
	}
	return &rec, nil
}
