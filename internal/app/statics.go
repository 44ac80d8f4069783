package app

import (
	"sort"
	"sync"
)

// Names of the static caches that hold cache tag checksums.
const (
	StaticCacheTags            = "cache.tags"
	StaticCacheDeletedTags     = "cache.deleted_tags"
	StaticCacheInvalidatedTags = "cache.invalidated_tags"
)

// Statics is a registry of in-memory caches that outlive a single container.
// The harness resets entries after every request to the served application.
type Statics struct {
	mu     sync.Mutex
	values map[string]any
}

// NewStatics returns an empty registry.
func NewStatics() *Statics {
	return &Statics{values: map[string]any{}}
}

// Get returns the value for name, initialising it with init on first use.
func (s *Statics) Get(name string, init func() any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	if !ok && init != nil {
		v = init()
		s.values[name] = v
	}
	return v
}

// Set replaces the value for name.
func (s *Statics) Set(name string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = v
}

// Reset drops the named entries.
func (s *Statics) Reset(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		delete(s.values, name)
	}
}

// ResetAll drops every entry.
func (s *Statics) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = map[string]any{}
}

// Names returns the populated entries, sorted.
func (s *Statics) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a shallow copy of the entries.
func (s *Statics) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Restore replaces every entry with values.
func (s *Statics) Restore(values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]any, len(values))
	for k, v := range values {
		s.values[k] = v
	}
}
