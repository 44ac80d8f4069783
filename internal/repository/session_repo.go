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

// SessionRepository stores login sessions keyed by the hashed session id
type SessionRepository struct {
	conn *database.Conn
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(conn *database.Conn) *SessionRepository {
	return &SessionRepository{conn: conn}
}

// Create records that sid belongs to uid
func (r *SessionRepository) Create(ctx context.Context, sid string, uid int64, hostname string) error {
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO {sessions} (sid, uid, hostname, accessed) VALUES (?, ?, ?, ?)`,
		models.HashSessionID(sid), uid, hostname, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Lookup returns the uid owning sid, or false if there is no such session
func (r *SessionRepository) Lookup(ctx context.Context, sid string) (int64, bool, error) {
	var uid int64
	err := r.conn.QueryRowContext(ctx,
		`SELECT uid FROM {sessions} WHERE sid = ?`, models.HashSessionID(sid)).Scan(&uid)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up session: %w", err)
	}
	return uid, true, nil
}

// Exists reports whether sid is an open session of uid
func (r *SessionRepository) Exists(ctx context.Context, sid string, uid int64) (bool, error) {
	owner, ok, err := r.Lookup(ctx, sid)
	if err != nil || !ok {
		return false, err
	}
	return owner == uid, nil
}

// Delete removes the session sid
func (r *SessionRepository) Delete(ctx context.Context, sid string) error {
	_, err := r.conn.ExecContext(ctx, `DELETE FROM {sessions} WHERE sid = ?`, models.HashSessionID(sid))
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteForUser removes every session of uid
func (r *SessionRepository) DeleteForUser(ctx context.Context, uid int64) error {
	_, err := r.conn.ExecContext(ctx, `DELETE FROM {sessions} WHERE uid = ?`, uid)
	if err != nil {
		return fmt.Errorf("failed to delete sessions of user %d: %w", uid, err)
	}
	return nil
}
