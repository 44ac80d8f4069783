package app

import (
	"context"
	"sync"

	"github.com/themizzi/sitetest/internal/repository"
)

// CacheTags keeps invalidation counters per tag in storage. Counters read
// during a request are memoised in the statics so that checksums stay stable
// until the statics are reset.
type CacheTags struct {
	mu      sync.Mutex
	kv      *repository.KeyValueRepository
	statics *Statics
}

// NewCacheTags creates the tag checksum service.
func NewCacheTags(kv *repository.KeyValueRepository, statics *Statics) *CacheTags {
	return &CacheTags{kv: kv, statics: statics}
}

func (c *CacheTags) counts() map[string]int {
	return c.statics.Get(StaticCacheTags, func() any { return map[string]int{} }).(map[string]int)
}

func (c *CacheTags) invalidated() map[string]bool {
	return c.statics.Get(StaticCacheInvalidatedTags, func() any { return map[string]bool{} }).(map[string]bool)
}

// Checksum returns the sum of the invalidation counters of tags.
func (c *CacheTags) Checksum(ctx context.Context, tags ...string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := c.counts()
	sum := 0
	for _, tag := range tags {
		n, ok := counts[tag]
		if !ok {
			if _, err := c.kv.Get(ctx, tag, &n); err != nil {
				return 0, err
			}
			counts[tag] = n
		}
		sum += n
	}
	return sum, nil
}

// IsValid reports whether checksum still matches tags.
func (c *CacheTags) IsValid(ctx context.Context, checksum int, tags ...string) bool {
	current, err := c.Checksum(ctx, tags...)
	return err == nil && current == checksum
}

// Invalidate bumps the counters of tags.
func (c *CacheTags) Invalidate(ctx context.Context, tags ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := c.counts()
	invalidated := c.invalidated()
	for _, tag := range tags {
		var n int
		if _, err := c.kv.Get(ctx, tag, &n); err != nil {
			return err
		}
		n++
		if err := c.kv.Set(ctx, tag, n); err != nil {
			return err
		}
		counts[tag] = n
		invalidated[tag] = true
	}
	return nil
}
