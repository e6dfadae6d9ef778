// Package taskstore defines the port for durable task records.
package taskstore

import (
	"context"
	"time"

	"github.com/pricescout/pricescout/internal/domain/task"
)

// Store persists task records with a mandatory expiry.
type Store interface {
	// Put writes or overwrites a task record and refreshes its expiry.
	Put(ctx context.Context, t task.Task, ttl time.Duration) error

	// Get returns the task with the given ID. Unknown or expired IDs
	// yield domain.ErrNotFound; connectivity failures yield a
	// different error.
	Get(ctx context.Context, id string) (task.Task, error)
}
