package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, name string) *Session {
	t.Helper()
	d, err := NewHTTPDriver(HTTPDriverOptions{BaseURL: "http://example.com"})
	require.NoError(t, err)
	return NewSession(name, d)
}

func TestManager_CloseAllWithoutSessions(t *testing.T) {
	m := NewManager()

	assert.NoError(t, m.CloseAll())
	assert.NoError(t, m.CloseAll())
}

func TestManager_DefaultResolution(t *testing.T) {
	m := NewManager()
	_, err := m.Get("")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	m.Register(newTestSession(t, DefaultSession))
	m.Register(newTestSession(t, "admin"))

	s, err := m.Get("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSession, s.Name())

	require.NoError(t, m.SetDefault("admin"))
	s, err = m.Get("")
	require.NoError(t, err)
	assert.Equal(t, "admin", s.Name())

	assert.ErrorIs(t, m.SetDefault("missing"), ErrSessionNotFound)
	assert.Equal(t, "admin", m.Default())
}

func TestManager_OpenAndCloseAll(t *testing.T) {
	m := NewManager()
	m.Register(newTestSession(t, DefaultSession))
	m.Register(newTestSession(t, "aux"))

	s, err := m.Open(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, s.IsStarted())

	aux, err := m.Get("aux")
	require.NoError(t, err)
	assert.False(t, aux.IsStarted(), "sessions only start when opened")

	require.NoError(t, m.CloseAll())
	assert.False(t, s.IsStarted())
}
