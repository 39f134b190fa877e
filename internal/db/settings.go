package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Setting returns the raw value stored under key.
func (db *DB) Setting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting upserts key.
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

// DeleteSetting removes key; a missing key is not an error.
func (db *DB) DeleteSetting(ctx context.Context, key string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete setting %s: %w", key, err)
	}
	return nil
}

// LastTraining reads a training date stored by SetLastTraining.
func (db *DB) LastTraining(ctx context.Context, key string) (time.Time, bool, error) {
	raw, ok, err := db.Setting(ctx, key)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("setting %s: %w", key, err)
	}
	return t, true, nil
}

// SetLastTraining stores t under key with nanosecond precision.
func (db *DB) SetLastTraining(ctx context.Context, key string, t time.Time) error {
	return db.SetSetting(ctx, key, t.UTC().Format(time.RFC3339Nano))
}

// ClearLastTraining forgets the training date under key.
func (db *DB) ClearLastTraining(ctx context.Context, key string) error {
	return db.DeleteSetting(ctx, key)
}
