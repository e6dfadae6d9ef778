// Package memstore implements an in-process task store for development and tests.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/pricescout/pricescout/internal/domain"
	"github.com/pricescout/pricescout/internal/domain/task"
)

type entry struct {
	task      task.Task
	expiresAt time.Time
}

// Store keeps task records in a map with per-record expiry.
// Expired records are dropped lazily on read and by a periodic sweep.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time // for testing
}

// New creates an empty in-memory task store.
func New() *Store {
	return &Store{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Put writes or overwrites a task record, refreshing its expiry.
func (s *Store) Put(_ context.Context, t task.Task, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[t.ID] = entry{task: t, expiresAt: s.now().Add(ttl)}
	return nil
}

// Get returns the task with the given ID, or domain.ErrNotFound for
// unknown and expired IDs.
func (s *Store) Get(_ context.Context, id string) (task.Task, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()

	if !ok {
		return task.Task{}, domain.ErrNotFound
	}
	if s.now().After(e.expiresAt) {
		return s.evictExpired(id)
	}
	return e.task, nil
}

// evictExpired re-checks the entry under the write lock before deleting:
// a concurrent Put may have refreshed it after the read above, and a
// refreshed record must survive.
func (s *Store) evictExpired(id string) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return task.Task{}, domain.ErrNotFound
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, id)
		return task.Task{}, domain.ErrNotFound
	}
	return e.task, nil
}

// StartSweep spawns a goroutine that removes expired records every
// interval. Returns a cancel function that stops the sweeper.
func (s *Store) StartSweep(interval time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
	return cancel
}

func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
		}
	}
}

// Len returns the number of stored records (for testing).
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
