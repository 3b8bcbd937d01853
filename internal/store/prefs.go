package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetPref returns the value stored under key and whether it exists.
func (db *DB) GetPref(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM prefs WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetPref stores value under key.
func (db *DB) SetPref(ctx context.Context, key, value string) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO prefs (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// DeletePref removes key.
func (db *DB) DeletePref(ctx context.Context, key string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM prefs WHERE key = ?`, key)
	return err
}
