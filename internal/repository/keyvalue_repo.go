package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/themizzi/sitetest/internal/database"
)

// KeyValueRepository stores JSON encoded values in one collection
type KeyValueRepository struct {
	conn       *database.Conn
	collection string
}

// NewKeyValueRepository creates a repository for collection
func NewKeyValueRepository(conn *database.Conn, collection string) *KeyValueRepository {
	return &KeyValueRepository{conn: conn, collection: collection}
}

// Get decodes the value stored under name into dest. It returns false when
// nothing is stored.
func (r *KeyValueRepository) Get(ctx context.Context, name string, dest any) (bool, error) {
	var raw string
	err := r.conn.QueryRowContext(ctx,
		`SELECT value FROM {key_value} WHERE collection = ? AND name = ?`, r.collection, name,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s.%s: %w", r.collection, name, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("failed to decode %s.%s: %w", r.collection, name, err)
	}
	return true, nil
}

// Set stores value under name
func (r *KeyValueRepository) Set(ctx context.Context, name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s.%s: %w", r.collection, name, err)
	}
	_, err = r.conn.ExecContext(ctx, `
		INSERT INTO {key_value} (collection, name, value) VALUES (?, ?, ?)
		ON CONFLICT (collection, name) DO UPDATE SET value = excluded.value`,
		r.collection, name, string(raw))
	if err != nil {
		return fmt.Errorf("failed to write %s.%s: %w", r.collection, name, err)
	}
	return nil
}

// Delete removes name
func (r *KeyValueRepository) Delete(ctx context.Context, name string) error {
	_, err := r.conn.ExecContext(ctx,
		`DELETE FROM {key_value} WHERE collection = ? AND name = ?`, r.collection, name)
	if err != nil {
		return fmt.Errorf("failed to delete %s.%s: %w", r.collection, name, err)
	}
	return nil
}
