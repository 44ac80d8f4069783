package harness

import (
	"maps"
	"sync"

	"github.com/themizzi/sitetest/internal/app"
	"github.com/themizzi/sitetest/internal/config"
	"github.com/themizzi/sitetest/internal/database"
)

// Environment is the process-wide state a test run swaps out while it is
// active: connection infos, global settings, stream registrations, static
// caches and the marker telling the process it runs under test. Only one
// run may be bound to an Environment at a time.
type Environment struct {
	mu sync.Mutex

	Registry   *database.Registry
	Settings   map[string]any
	Streams    map[string]string
	Statics    *app.Statics
	TestPrefix string
	ErrorLog   string

	run *RunContext
}

// NewEnvironment creates an environment around registry.
func NewEnvironment(registry *database.Registry) *Environment {
	return &Environment{
		Registry: registry,
		Settings: map[string]any{},
		Streams:  map[string]string{},
		Statics:  app.NewStatics(),
	}
}

// EnvironmentFromConfig registers the configured storage as the default
// connection, plus the dedicated runner target when one is configured.
func EnvironmentFromConfig(cfg *config.HarnessConfig) *Environment {
	registry := database.NewRegistry()
	registry.Add(database.DefaultKey, database.DefaultTarget, database.ConnectionInfo{
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
	})
	if cfg.Storage.RunnerDSN != "" {
		registry.Add(database.DefaultKey, database.RunnerTarget, database.ConnectionInfo{
			Driver: cfg.Storage.Driver,
			DSN:    cfg.Storage.RunnerDSN,
		})
	}
	return NewEnvironment(registry)
}

// Snapshot is the captured global state of an Environment.
type Snapshot struct {
	Connections database.Infos
	Settings    map[string]any
	Streams     map[string]string
	Statics     map[string]any
	TestPrefix  string
	ErrorLog    string
}

// Snapshot captures the current state. Later mutations of the environment
// do not affect it.
func (e *Environment) Snapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return &Snapshot{
		Connections: e.Registry.Infos(),
		Settings:    cloneSettings(e.Settings),
		Streams:     maps.Clone(e.Streams),
		Statics:     e.Statics.Snapshot(),
		TestPrefix:  e.TestPrefix,
		ErrorLog:    e.ErrorLog,
	}
}

// Restore puts back the state captured in s.
func (e *Environment) Restore(s *Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Registry.Replace(s.Connections)
	e.Settings = cloneSettings(s.Settings)
	e.Streams = maps.Clone(s.Streams)
	if e.Streams == nil {
		e.Streams = map[string]string{}
	}
	e.Statics.Restore(s.Statics)
	e.TestPrefix = s.TestPrefix
	e.ErrorLog = s.ErrorLog
}

// Setting returns a global setting.
func (e *Environment) Setting(name string) any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Settings[name]
}

// Run returns the bound run, if any.
func (e *Environment) Run() *RunContext {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run
}

func (e *Environment) bind(run *RunContext) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run != nil && e.run != run {
		return ErrRunBound
	}
	e.run = run
	return nil
}

func (e *Environment) unbind(run *RunContext) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run == run {
		e.run = nil
	}
}

func cloneSettings(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return cloneSettings(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), v...)
	default:
		return v
	}
}
