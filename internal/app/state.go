package app

import (
	"context"
	"sync"

	"github.com/goccy/go-json"

	"github.com/themizzi/sitetest/internal/repository"
)

// State is the key/value store for non-configuration site state. Values are
// cached until ResetCache.
type State struct {
	mu    sync.Mutex
	kv    *repository.KeyValueRepository
	cache map[string]json.RawMessage
}

// NewState creates the state service.
func NewState(kv *repository.KeyValueRepository) *State {
	return &State{kv: kv, cache: map[string]json.RawMessage{}}
}

// Get decodes key into dest and reports whether it was set.
func (s *State) Get(ctx context.Context, key string, dest any) (bool, error) {
	s.mu.Lock()
	raw, ok := s.cache[key]
	s.mu.Unlock()

	if !ok {
		found, err := s.kv.Get(ctx, key, &raw)
		if err != nil {
			return false, err
		}
		if !found {
			raw = nil
		}
		s.mu.Lock()
		s.cache[key] = raw
		s.mu.Unlock()
	}
	if raw == nil {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

// Set stores value under key.
func (s *State) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, key, json.RawMessage(raw)); err != nil {
		return err
	}
	s.mu.Lock()
	s.cache[key] = raw
	s.mu.Unlock()
	return nil
}

// Delete removes key.
func (s *State) Delete(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, key); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
	return nil
}

// ResetCache forgets every cached value.
func (s *State) ResetCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = map[string]json.RawMessage{}
}
