// Package tiered layers the in-process hot cache over a shared durable
// tier so repeated task reads stay local after the first hit.
package tiered

import (
	"context"
	"time"

	"github.com/pricescout/pricescout/internal/port/cache"
)

// Cache reads through the hot tier into the shared one and backfills
// on a shared-tier hit. The shared tier is authoritative: writes land
// there first, so the hot tier never holds a record the shared tier
// lost.
type Cache struct {
	hot    cache.Cache
	shared cache.Cache
	hotTTL time.Duration
}

// New creates a tiered cache. hotTTL bounds how long backfilled
// records live in the hot tier.
func New(hot, shared cache.Cache, hotTTL time.Duration) *Cache {
	return &Cache{hot: hot, shared: shared, hotTTL: hotTTL}
}

// Get returns the record from the hot tier when present, falling back
// to the shared tier and backfilling on a hit.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, found, err := c.hot.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return data, true, nil
	}

	data, found, err = c.shared.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	_ = c.hot.Set(ctx, key, data, c.hotTTL)
	return data, true, nil
}

// Set writes the shared tier first, then the hot tier.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.shared.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.hot.Set(ctx, key, value, ttl)
}

// Delete removes the record from both tiers, hot first so a failed
// shared delete cannot leave a stale local copy.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.hot.Delete(ctx, key); err != nil {
		return err
	}
	return c.shared.Delete(ctx, key)
}
