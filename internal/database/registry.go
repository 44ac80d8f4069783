package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Well-known connection keys and targets.
const (
	DefaultKey      = "default"
	DefaultTarget   = "default"
	RunnerTarget    = "test-runner"
	OriginalDefault = "simpletest_original_default"
)

// ErrConnectionNotDefined is returned when a key/target pair is unknown.
var ErrConnectionNotDefined = errors.New("connection not defined")

// Infos maps connection key to target to connection info.
type Infos map[string]map[string]ConnectionInfo

// Clone returns a deep copy.
func (in Infos) Clone() Infos {
	out := make(Infos, len(in))
	for key, targets := range in {
		out[key] = make(map[string]ConnectionInfo, len(targets))
		for target, info := range targets {
			out[key][target] = info
		}
	}
	return out
}

// Registry holds named connection infos and hands out connections for them.
// Pools are shared between infos that only differ by prefix.
type Registry struct {
	mu    sync.Mutex
	infos Infos
	pools map[string]*sql.DB
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		infos: Infos{},
		pools: map[string]*sql.DB{},
	}
}

// Add registers info under key/target, replacing any previous entry.
func (r *Registry) Add(key, target string, info ConnectionInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.infos[key] == nil {
		r.infos[key] = map[string]ConnectionInfo{}
	}
	r.infos[key][target] = info
}

// Rename moves all targets of oldKey under newKey.
func (r *Registry) Rename(oldKey, newKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	targets, ok := r.infos[oldKey]
	if !ok {
		return fmt.Errorf("rename %s: %w", oldKey, ErrConnectionNotDefined)
	}
	if _, exists := r.infos[newKey]; exists {
		return fmt.Errorf("rename %s: key %s already in use", oldKey, newKey)
	}
	delete(r.infos, oldKey)
	r.infos[newKey] = targets
	return nil
}

// Remove forgets every target of key.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.infos, key)
}

// Info looks up key/target.
func (r *Registry) Info(key, target string) (ConnectionInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.infos[key][target]
	return info, ok
}

// Keys returns the registered keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.infos))
	for key := range r.infos {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Infos returns a deep copy of every registered info.
func (r *Registry) Infos() Infos {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.infos.Clone()
}

// Replace swaps the whole set of infos. Open pools stay cached so later
// connections to the same engine reuse them.
func (r *Registry) Replace(infos Infos) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = infos.Clone()
}

// Connection returns a handle for key/target, opening the pool on first use.
// The returned Conn must not be closed by the caller; Close on the registry
// releases the pools.
func (r *Registry) Connection(ctx context.Context, key, target string) (*Conn, error) {
	info, ok := r.Info(key, target)
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", key, target, ErrConnectionNotDefined)
	}
	return r.Open(ctx, info)
}

// Open returns a handle for info using a cached pool when one exists.
func (r *Registry) Open(ctx context.Context, info ConnectionInfo) (*Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	db, ok := r.pools[info.poolKey()]
	if !ok {
		var err error
		db, err = openPool(ctx, info)
		if err != nil {
			return nil, err
		}
		r.pools[info.poolKey()] = db
	}
	return &Conn{db: db, info: info}, nil
}

// Close closes every pool the registry opened.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for key, db := range r.pools {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.pools, key)
	}
	return errors.Join(errs...)
}
