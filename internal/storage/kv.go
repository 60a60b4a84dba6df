package storage

import (
	"context"
	"database/sql"
	"errors"
)

// GetValue reads a device-local key. ok is false when the key was never set.
func (r *SQLiteRepository) GetValue(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("get value", err)
	}
	return v, true, nil
}

// SetValue overwrites a device-local key.
func (r *SQLiteRepository) SetValue(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, r.now().UnixMilli())
	if err != nil {
		return unavailable("set value", err)
	}
	return nil
}
