// Package kvstore is the node's non-volatile key/value storage.
//
// Values are stored as strings. Typed helpers encode integers and booleans
// in a stable textual form so that the table stays readable with the sqlite3
// shell on a field device.
package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/database"
)

// Store is the storage contract used by the mode, device and connectivity
// packages. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Erase(ctx context.Context) error
}

// SQLite is a Store backed by the kv table created by the embedded migrations.
type SQLite struct {
	db *database.DB
}

// NewSQLite wraps an open, migrated database.
func NewSQLite(db *database.DB) *SQLite {
	return &SQLite{db: db}
}

// Get returns the value for key, or ErrNotFound.
func (s *SQLite) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return value, nil
}

// Set writes value for key, replacing any previous value.
// The write is durable when Set returns nil.
func (s *SQLite) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Erase removes every key. Used by factory reset.
func (s *SQLite) Erase(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv"); err != nil {
		return fmt.Errorf("erasing store: %w", err)
	}
	return nil
}

// GetInt reads an integer value. A missing key yields def with a nil error.
func GetInt(ctx context.Context, s Store, key string, def int) (int, error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, raw)
	}
	return n, nil
}

// SetInt writes an integer value.
func SetInt(ctx context.Context, s Store, key string, v int) error {
	return s.Set(ctx, key, strconv.Itoa(v))
}

// GetBool reads a boolean value. A missing key yields def with a nil error.
func GetBool(ctx context.Context, s Store, key string, def bool) (bool, error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, raw)
	}
	return b, nil
}

// SetBool writes a boolean value.
func SetBool(ctx context.Context, s Store, key string, v bool) error {
	return s.Set(ctx, key, strconv.FormatBool(v))
}
