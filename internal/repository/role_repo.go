package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/themizzi/sitetest/internal/database"
	"github.com/themizzi/sitetest/internal/models"
)

// RoleRepository handles database operations for roles and their grants
type RoleRepository struct {
	conn *database.Conn
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(conn *database.Conn) *RoleRepository {
	return &RoleRepository{conn: conn}
}

// Create persists a new role. It fails with ErrRoleExists if the id is taken.
func (r *RoleRepository) Create(ctx context.Context, role *models.Role) error {
	exists, err := r.Exists(ctx, role.ID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", models.ErrRoleExists, role.ID)
	}
	_, err = r.conn.ExecContext(ctx,
		`INSERT INTO {roles} (rid, label, weight) VALUES (?, ?, ?)`,
		role.ID, role.Label, role.Weight)
	if err != nil {
		return fmt.Errorf("failed to create role %s: %w", role.ID, err)
	}
	return nil
}

// Exists reports whether rid is stored
func (r *RoleRepository) Exists(ctx context.Context, rid string) (bool, error) {
	var n int
	err := r.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM {roles} WHERE rid = ?`, rid).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up role %s: %w", rid, err)
	}
	return n > 0, nil
}

// Load retrieves a role with its permissions
func (r *RoleRepository) Load(ctx context.Context, rid string) (*models.Role, error) {
	role := &models.Role{}
	err := r.conn.QueryRowContext(ctx,
		`SELECT rid, label, weight FROM {roles} WHERE rid = ?`, rid,
	).Scan(&role.ID, &role.Label, &role.Weight)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrRoleNotFound, rid)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load role %s: %w", rid, err)
	}
	role.Permissions, err = r.Permissions(ctx, rid)
	if err != nil {
		return nil, err
	}
	return role, nil
}

// NextWeight returns one more than the heaviest stored role
func (r *RoleRepository) NextWeight(ctx context.Context) (int, error) {
	var w int
	err := r.conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(weight), 0) + 1 FROM {roles}`).Scan(&w)
	if err != nil {
		return 0, fmt.Errorf("failed to compute role weight: %w", err)
	}
	return w, nil
}

// Grant adds permissions to rid. Already granted permissions are ignored.
func (r *RoleRepository) Grant(ctx context.Context, rid string, permissions ...string) error {
	for _, permission := range permissions {
		_, err := r.conn.ExecContext(ctx, `
			INSERT INTO {role_permissions} (rid, permission) VALUES (?, ?)
			ON CONFLICT (rid, permission) DO NOTHING`, rid, permission)
		if err != nil {
			return fmt.Errorf("failed to grant %q to %s: %w", permission, rid, err)
		}
	}
	return nil
}

// Revoke removes permissions from rid.
func (r *RoleRepository) Revoke(ctx context.Context, rid string, permissions ...string) error {
	for _, permission := range permissions {
		_, err := r.conn.ExecContext(ctx,
			`DELETE FROM {role_permissions} WHERE rid = ? AND permission = ?`, rid, permission)
		if err != nil {
			return fmt.Errorf("failed to revoke %q from %s: %w", permission, rid, err)
		}
	}
	return nil
}

// Permissions returns the permissions granted to rid, sorted
func (r *RoleRepository) Permissions(ctx context.Context, rid string) ([]string, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT permission FROM {role_permissions} WHERE rid = ? ORDER BY permission`, rid)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions of %s: %w", rid, err)
	}
	defer rows.Close()

	permissions := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		permissions = append(permissions, p)
	}
	return permissions, rows.Err()
}

// HasPermission reports whether any of roles grants permission
func (r *RoleRepository) HasPermission(ctx context.Context, roles []string, permission string) (bool, error) {
	for _, rid := range roles {
		granted, err := r.Permissions(ctx, rid)
		if err != nil {
			return false, err
		}
		for _, p := range granted {
			if p == permission {
				return true, nil
			}
		}
	}
	return false, nil
}
