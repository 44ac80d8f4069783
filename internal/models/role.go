package models

import (
	"errors"
	"regexp"
	"slices"
)

// Built-in roles every installed site has.
const (
	RoleAnonymous     = "anonymous"
	RoleAuthenticated = "authenticated"
)

// Role groups permissions granted to accounts.
type Role struct {
	ID          string
	Label       string
	Weight      int
	Permissions []string
}

// Permission is an entry of the permission registry declared by modules.
type Permission struct {
	Name   string
	Title  string
	Module string
}

// Domain errors
var (
	ErrInvalidRoleID = errors.New("role id must only contain lowercase letters, numbers and underscores")
	ErrRoleNotFound  = errors.New("role not found")
	ErrRoleExists    = errors.New("role already exists")
)

var roleIDPattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// NewRole creates a role with validation. The label defaults to the id.
func NewRole(id, label string, weight int) (*Role, error) {
	if !roleIDPattern.MatchString(id) {
		return nil, ErrInvalidRoleID
	}
	if label == "" {
		label = id
	}
	return &Role{ID: id, Label: label, Weight: weight}, nil
}

// IsLocked returns true for the built-in roles
func (r *Role) IsLocked() bool {
	return r.ID == RoleAnonymous || r.ID == RoleAuthenticated
}

// HasPermission returns true if the role grants permission
func (r *Role) HasPermission(permission string) bool {
	return slices.Contains(r.Permissions, permission)
}
