package models

import (
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Reserved account ids.
const (
	AnonymousID int64 = 0
	RootID      int64 = 1
)

// AccountStatus tells whether an account may log in.
type AccountStatus int

// Account statuses
const (
	StatusBlocked AccountStatus = 0
	StatusActive  AccountStatus = 1
)

// Account represents a user of the served application.
type Account struct {
	ID       int64
	Name     string
	Mail     string
	PassHash string
	Status   AccountStatus
	Roles    []string
	Created  time.Time

	// PassRaw is the plaintext password of accounts created by fixtures.
	// Storage only keeps PassHash.
	PassRaw string
	// SessionID is the session cookie value while the account is logged in
	// through a browser session.
	SessionID string
}

// Domain errors
var (
	ErrInvalidName        = errors.New("username cannot be empty or longer than 60 characters")
	ErrInvalidMail        = errors.New("e-mail address is not valid")
	ErrEmptyPassword      = errors.New("password cannot be empty")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountBlocked     = errors.New("account is blocked")
	ErrInvalidCredentials = errors.New("unrecognized username or password")
)

// NewAccount validates the input and hashes the password with the given
// bcrypt cost (0 selects bcrypt.DefaultCost). The plaintext is kept in
// PassRaw.
func NewAccount(name, mailAddr, password string, cost int) (*Account, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if _, err := mail.ParseAddress(mailAddr); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMail, mailAddr)
	}
	hash, err := HashPassword(password, cost)
	if err != nil {
		return nil, err
	}
	return &Account{
		Name:     name,
		Mail:     mailAddr,
		PassHash: hash,
		PassRaw:  password,
		Status:   StatusActive,
		Roles:    []string{RoleAuthenticated},
		Created:  time.Now(),
	}, nil
}

// Anonymous returns the account every request starts out as.
func Anonymous() *Account {
	return &Account{
		ID:     AnonymousID,
		Status: StatusActive,
		Roles:  []string{RoleAnonymous},
	}
}

// ValidateName checks a username.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" || len(name) > 60 {
		return ErrInvalidName
	}
	return nil
}

// IsAnonymous returns true for the anonymous account
func (a *Account) IsAnonymous() bool {
	return a == nil || a.ID == AnonymousID
}

// IsAuthenticated returns true for any real account
func (a *Account) IsAuthenticated() bool {
	return !a.IsAnonymous()
}

// IsActive returns true if the account may log in
func (a *Account) IsActive() bool {
	return a.Status == StatusActive
}

// HasRole returns true if the account holds role rid
func (a *Account) HasRole(rid string) bool {
	return slices.Contains(a.Roles, rid)
}

// CheckPassword compares password with the stored hash.
func (a *Account) CheckPassword(password string) bool {
	if a.PassHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.PassHash), []byte(password)) == nil
}

// HashPassword hashes password with bcrypt.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
