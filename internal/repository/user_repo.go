package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/themizzi/sitetest/internal/database"
	"github.com/themizzi/sitetest/internal/models"
)

// UserRepository handles database operations for accounts
type UserRepository struct {
	conn *database.Conn
}

// NewUserRepository creates a new user repository
func NewUserRepository(conn *database.Conn) *UserRepository {
	return &UserRepository{conn: conn}
}

// Create persists account and assigns its id when unset. The built-in
// authenticated role is implied and not stored.
func (r *UserRepository) Create(ctx context.Context, account *models.Account) error {
	if account.ID == 0 {
		var next int64
		err := r.conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(uid), 0) + 1 FROM {users}`).Scan(&next)
		if err != nil {
			return fmt.Errorf("failed to allocate uid: %w", err)
		}
		account.ID = next
	}
	if account.Created.IsZero() {
		account.Created = time.Now()
	}

	_, err := r.conn.ExecContext(ctx, `
		INSERT INTO {users} (uid, name, mail, pass, status, created)
		VALUES (?, ?, ?, ?, ?, ?)`,
		account.ID, account.Name, account.Mail, account.PassHash, int(account.Status), account.Created.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create user %s: %w", account.Name, err)
	}

	for _, rid := range account.Roles {
		if rid == models.RoleAuthenticated || rid == models.RoleAnonymous {
			continue
		}
		if err := r.AddRole(ctx, account.ID, rid); err != nil {
			return err
		}
	}
	return nil
}

// AddRole attaches role rid to account uid.
func (r *UserRepository) AddRole(ctx context.Context, uid int64, rid string) error {
	_, err := r.conn.ExecContext(ctx, `
		INSERT INTO {users_roles} (uid, rid) VALUES (?, ?)
		ON CONFLICT (uid, rid) DO NOTHING`, uid, rid)
	if err != nil {
		return fmt.Errorf("failed to add role %s to user %d: %w", rid, uid, err)
	}
	return nil
}

// Load retrieves an account by id
func (r *UserRepository) Load(ctx context.Context, uid int64) (*models.Account, error) {
	return r.loadWhere(ctx, "uid = ?", uid)
}

// LoadByName retrieves an account by username
func (r *UserRepository) LoadByName(ctx context.Context, name string) (*models.Account, error) {
	return r.loadWhere(ctx, "name = ?", name)
}

func (r *UserRepository) loadWhere(ctx context.Context, where string, arg any) (*models.Account, error) {
	account := &models.Account{}
	var status int
	var created int64
	err := r.conn.QueryRowContext(ctx,
		`SELECT uid, name, mail, pass, status, created FROM {users} WHERE `+where, arg,
	).Scan(&account.ID, &account.Name, &account.Mail, &account.PassHash, &status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	account.Status = models.AccountStatus(status)
	account.Created = time.Unix(created, 0)

	roles, err := r.roles(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	account.Roles = append([]string{models.RoleAuthenticated}, roles...)
	return account, nil
}

func (r *UserRepository) roles(ctx context.Context, uid int64) ([]string, error) {
	rows, err := r.conn.QueryContext(ctx, `SELECT rid FROM {users_roles} WHERE uid = ? ORDER BY rid`, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles of user %d: %w", uid, err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var rid string
		if err := rows.Scan(&rid); err != nil {
			return nil, err
		}
		roles = append(roles, rid)
	}
	return roles, rows.Err()
}

// UpdateStatus blocks or unblocks an account
func (r *UserRepository) UpdateStatus(ctx context.Context, uid int64, status models.AccountStatus) error {
	result, err := r.conn.ExecContext(ctx, `UPDATE {users} SET status = ? WHERE uid = ?`, int(status), uid)
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.ErrAccountNotFound
	}
	return nil
}

// Count returns the number of stored accounts
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM {users}`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}
