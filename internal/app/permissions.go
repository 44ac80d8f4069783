package app

import (
	"context"
	"sort"
	"sync"

	"github.com/themizzi/sitetest/internal/models"
	"github.com/themizzi/sitetest/internal/repository"
)

// PermissionRegistry lists the permissions declared by enabled modules.
type PermissionRegistry struct {
	permissions map[string]models.Permission
}

// NewPermissionRegistry collects the permissions of enabled.
func NewPermissionRegistry(enabled []string) *PermissionRegistry {
	r := &PermissionRegistry{permissions: map[string]models.Permission{}}
	for _, name := range enabled {
		m, ok := LookupModule(name)
		if !ok {
			continue
		}
		for _, p := range m.Permissions {
			p.Module = name
			r.permissions[p.Name] = p
		}
	}
	return r
}

// Has reports whether permission is declared.
func (r *PermissionRegistry) Has(permission string) bool {
	_, ok := r.permissions[permission]
	return ok
}

// Invalid returns the entries of names that are not declared, in order.
func (r *PermissionRegistry) Invalid(names []string) []string {
	var invalid []string
	for _, name := range names {
		if !r.Has(name) {
			invalid = append(invalid, name)
		}
	}
	return invalid
}

// Names returns every declared permission, sorted.
func (r *PermissionRegistry) Names() []string {
	names := make([]string, 0, len(r.permissions))
	for name := range r.permissions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AccountProxy holds the account the container acts on behalf of.
type AccountProxy struct {
	mu      sync.RWMutex
	account *models.Account
	roles   *repository.RoleRepository
}

// NewAccountProxy starts out anonymous.
func NewAccountProxy(roles *repository.RoleRepository) *AccountProxy {
	return &AccountProxy{account: models.Anonymous(), roles: roles}
}

// SetAccount switches the current account. A nil account means anonymous.
func (p *AccountProxy) SetAccount(account *models.Account) {
	if account == nil {
		account = models.Anonymous()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.account = account
}

// Account returns the current account.
func (p *AccountProxy) Account() *models.Account {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.account
}

// ID returns the current account id.
func (p *AccountProxy) ID() int64 {
	return p.Account().ID
}

// IsAuthenticated reports whether a real account is set.
func (p *AccountProxy) IsAuthenticated() bool {
	return p.Account().IsAuthenticated()
}

// HasPermission checks permission against the current account's roles. The
// root account has every permission.
func (p *AccountProxy) HasPermission(ctx context.Context, permission string) (bool, error) {
	account := p.Account()
	if account.ID == models.RootID {
		return true, nil
	}
	return p.roles.HasPermission(ctx, account.Roles, permission)
}
