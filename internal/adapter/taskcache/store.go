// Package taskcache implements the task store port on top of a byte-level cache.
package taskcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pricescout/pricescout/internal/domain"
	"github.com/pricescout/pricescout/internal/domain/task"
	"github.com/pricescout/pricescout/internal/port/cache"
)

// keyPrefix uses a dot separator so keys stay valid in every backend,
// NATS KV's restricted key charset included.
const keyPrefix = "tasks."

// Store persists JSON-encoded task records in a cache.Cache.
// Combined with the tiered adapter this gives an L1/L2 task store
// where expiry is enforced by the cache backends.
type Store struct {
	cache cache.Cache
}

// New creates a cache-backed task store.
func New(c cache.Cache) *Store {
	return &Store{cache: c}
}

// Put writes or overwrites a task record, refreshing its expiry.
func (s *Store) Put(ctx context.Context, t task.Task, ttl time.Duration) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", t.ID, err)
	}
	if err := s.cache.Set(ctx, keyPrefix+t.ID, data, ttl); err != nil {
		return fmt.Errorf("%w: put task %s: %v", domain.ErrStoreUnavailable, t.ID, err)
	}
	return nil
}

// Get returns the task with the given ID, or domain.ErrNotFound for
// unknown and expired IDs.
func (s *Store) Get(ctx context.Context, id string) (task.Task, error) {
	data, found, err := s.cache.Get(ctx, keyPrefix+id)
	if err != nil {
		return task.Task{}, fmt.Errorf("%w: get task %s: %v", domain.ErrStoreUnavailable, id, err)
	}
	if !found {
		return task.Task{}, domain.ErrNotFound
	}

	var t task.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return task.Task{}, fmt.Errorf("unmarshal task %s: %w", id, err)
	}
	return t, nil
}
