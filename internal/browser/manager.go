package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultSession is the name of the session opened for every test.
const DefaultSession = "default"

// Manager owns the named sessions of one test run.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	order    []string
	def      string
}

// NewManager creates a manager with no sessions.
func NewManager() *Manager {
	return &Manager{sessions: map[string]*Session{}}
}

// Register adds a session, replacing one with the same name. The first
// registered session becomes the default.
func (m *Manager) Register(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.Name()]; !ok {
		m.order = append(m.order, s.Name())
	}
	m.sessions[s.Name()] = s
	if m.def == "" {
		m.def = s.Name()
	}
}

// SetDefault selects the session used when no name is given.
func (m *Manager) SetDefault(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[name]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, name)
	}
	m.def = name
	return nil
}

// Default returns the default session name.
func (m *Manager) Default() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.def
}

// Has reports whether name is registered.
func (m *Manager) Has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[name]
	return ok
}

// Get returns the named session, or the default one for an empty name.
func (m *Manager) Get(name string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name == "" {
		name = m.def
	}
	s, ok := m.sessions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, name)
	}
	return s, nil
}

// Open returns the named session, starting it if needed.
func (m *Manager) Open(ctx context.Context, name string) (*Session, error) {
	s, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start session %q: %w", s.Name(), err)
	}
	return s, nil
}

// CloseAll stops every started session. It is safe to call with no
// sessions and more than once.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.order))
	for _, name := range m.order {
		sessions = append(sessions, m.sessions[name])
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop session %q: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
