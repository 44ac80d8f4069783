package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/themizzi/sitetest/internal/database"
)

// ConfigRepository stores named configuration objects as JSON documents
type ConfigRepository struct {
	conn *database.Conn
}

// NewConfigRepository creates a new config repository
func NewConfigRepository(conn *database.Conn) *ConfigRepository {
	return &ConfigRepository{conn: conn}
}

// Read loads the object called name. The boolean is false when it does not
// exist.
func (r *ConfigRepository) Read(ctx context.Context, name string) (map[string]any, bool, error) {
	var raw string
	err := r.conn.QueryRowContext(ctx, `SELECT data FROM {config} WHERE name = ?`, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read config %s: %w", name, err)
	}
	data := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, false, fmt.Errorf("failed to decode config %s: %w", name, err)
	}
	return data, true, nil
}

// Write stores data under name, replacing any previous object
func (r *ConfigRepository) Write(ctx context.Context, name string, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode config %s: %w", name, err)
	}
	_, err = r.conn.ExecContext(ctx, `
		INSERT INTO {config} (name, data) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET data = excluded.data`, name, string(raw))
	if err != nil {
		return fmt.Errorf("failed to write config %s: %w", name, err)
	}
	return nil
}

// Delete removes the object called name
func (r *ConfigRepository) Delete(ctx context.Context, name string) error {
	if _, err := r.conn.ExecContext(ctx, `DELETE FROM {config} WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete config %s: %w", name, err)
	}
	return nil
}

// ListAll returns the names of stored objects starting with prefix
func (r *ConfigRepository) ListAll(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT name FROM {config} WHERE name LIKE ? ORDER BY name`, prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list config: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
