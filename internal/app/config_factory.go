package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/themizzi/sitetest/internal/repository"
)

// Config is one named configuration object.
type Config struct {
	name    string
	data    map[string]any
	isNew   bool
	factory *ConfigFactory
}

// Name returns the object name, e.g. "system.site".
func (c *Config) Name() string { return c.name }

// IsNew reports whether the object was never saved.
func (c *Config) IsNew() bool { return c.isNew }

// RawData returns a copy of the stored data.
func (c *Config) RawData() map[string]any { return deepCopy(c.data) }

// Get returns the value at a dotted key such as "page.front".
func (c *Config) Get(key string) any {
	if key == "" {
		return c.RawData()
	}
	var cur any = c.data
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		if cur, ok = m[part]; !ok {
			return nil
		}
	}
	return cur
}

// GetString returns Get(key) as a string, or "" for other types.
func (c *Config) GetString(key string) string {
	s, _ := c.Get(key).(string)
	return s
}

// GetBool returns Get(key) as a bool.
func (c *Config) GetBool(key string) bool {
	b, _ := c.Get(key).(bool)
	return b
}

// Set assigns value at a dotted key, creating intermediate maps.
func (c *Config) Set(key string, value any) *Config {
	parts := strings.Split(key, ".")
	m := c.data
	for _, part := range parts[:len(parts)-1] {
		next, ok := m[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[part] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
	return c
}

// Save persists the object and invalidates its cache tag.
func (c *Config) Save(ctx context.Context) error {
	if c.factory == nil {
		return fmt.Errorf("config %s is immutable", c.name)
	}
	return c.factory.save(ctx, c)
}

type cachedConfig struct {
	data     map[string]any
	exists   bool
	checksum int
}

// ConfigFactory loads configuration objects and caches them for the lifetime
// of the container. Overrides from the settings file apply to read-only
// objects only.
type ConfigFactory struct {
	mu        sync.Mutex
	repo      *repository.ConfigRepository
	tags      *CacheTags
	overrides map[string]map[string]any
	cache     map[string]cachedConfig
}

// NewConfigFactory creates a config factory.
func NewConfigFactory(repo *repository.ConfigRepository, tags *CacheTags, overrides map[string]map[string]any) *ConfigFactory {
	return &ConfigFactory{
		repo:      repo,
		tags:      tags,
		overrides: overrides,
		cache:     map[string]cachedConfig{},
	}
}

func cacheTag(name string) string { return "config:" + name }

func (f *ConfigFactory) load(ctx context.Context, name string) (cachedConfig, error) {
	f.mu.Lock()
	cached, ok := f.cache[name]
	f.mu.Unlock()
	if ok && f.tags.IsValid(ctx, cached.checksum, cacheTag(name)) {
		return cached, nil
	}

	checksum, err := f.tags.Checksum(ctx, cacheTag(name))
	if err != nil {
		return cachedConfig{}, err
	}
	data, exists, err := f.repo.Read(ctx, name)
	if err != nil {
		return cachedConfig{}, err
	}
	if data == nil {
		data = map[string]any{}
	}
	cached = cachedConfig{data: data, exists: exists, checksum: checksum}

	f.mu.Lock()
	f.cache[name] = cached
	f.mu.Unlock()
	return cached, nil
}

// Get returns a read-only view of name with settings overrides applied.
func (f *ConfigFactory) Get(ctx context.Context, name string) (*Config, error) {
	cached, err := f.load(ctx, name)
	if err != nil {
		return nil, err
	}
	data := deepCopy(cached.data)
	c := &Config{name: name, data: data, isNew: !cached.exists}
	for key, value := range f.overrides[name] {
		c.Set(key, value)
	}
	return c, nil
}

// GetEditable returns a mutable copy of name without overrides.
func (f *ConfigFactory) GetEditable(ctx context.Context, name string) (*Config, error) {
	cached, err := f.load(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Config{name: name, data: deepCopy(cached.data), isNew: !cached.exists, factory: f}, nil
}

func (f *ConfigFactory) save(ctx context.Context, c *Config) error {
	if err := f.repo.Write(ctx, c.name, c.data); err != nil {
		return err
	}
	if err := f.tags.Invalidate(ctx, cacheTag(c.name)); err != nil {
		return err
	}
	c.isNew = false
	f.mu.Lock()
	delete(f.cache, c.name)
	f.mu.Unlock()
	return nil
}

// Delete removes name from storage.
func (f *ConfigFactory) Delete(ctx context.Context, name string) error {
	if err := f.repo.Delete(ctx, name); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.cache, name)
	f.mu.Unlock()
	return f.tags.Invalidate(ctx, cacheTag(name))
}

// Reset drops every cached object.
func (f *ConfigFactory) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache = map[string]cachedConfig{}
}

func deepCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if inner, ok := v.(map[string]any); ok {
			out[k] = deepCopy(inner)
			continue
		}
		out[k] = v
	}
	return out
}
