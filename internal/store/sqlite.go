// apps/go-server/internal/store/sqlite.go
//
// SQLite implementation of Store backed by the settings table
// (see assets/sql/001_init.sql).

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLStore persists settings in SQLite. Writes are upserts.
type SQLStore struct{ db *sql.DB }

// NewSQLStore wraps an open database that has been migrated.
func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) GetInt(ctx context.Context, owner, key string) (int, bool, error) {
	var v int
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE owner=? AND key=?`, owner, key,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get setting %s/%s: %w", owner, key, err)
	}
	return v, true, nil
}

func (s *SQLStore) SetInt(ctx context.Context, owner, key string, v int) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO settings (owner, key, value, updated_at)
        VALUES (?, ?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(owner, key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		owner, key, v,
	)
	if err != nil {
		return fmt.Errorf("set setting %s/%s: %w", owner, key, err)
	}
	return nil
}
