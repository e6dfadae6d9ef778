package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pricescout/pricescout/internal/domain"
	"github.com/pricescout/pricescout/internal/domain/task"
)

// TaskStore implements the task store port on a pgx connection pool.
// Expiry is an expires_at column: reads filter on it, and a janitor
// deletes aged-out rows in the background.
type TaskStore struct {
	pool *pgxpool.Pool
}

// NewTaskStore creates a Postgres-backed task store.
func NewTaskStore(pool *pgxpool.Pool) *TaskStore {
	return &TaskStore{pool: pool}
}

// Put writes or overwrites a task record, refreshing its expiry.
func (s *TaskStore) Put(ctx context.Context, t task.Task, ttl time.Duration) error {
	listings, err := json.Marshal(t.Listings)
	if err != nil {
		return fmt.Errorf("marshal listings: %w", err)
	}

	expiresAt := time.Now().UTC().Add(ttl)
	_, err = s.pool.Exec(ctx, `
		INSERT INTO tasks (id, query, country, status, listings, error, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status     = EXCLUDED.status,
			listings   = EXCLUDED.listings,
			error      = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at,
			expires_at = EXCLUDED.expires_at`,
		t.ID, t.Query, t.Country, t.Status, listings, t.Error, t.CreatedAt, t.UpdatedAt, expiresAt)
	if err != nil {
		return fmt.Errorf("%w: put task %s: %v", domain.ErrStoreUnavailable, t.ID, err)
	}
	return nil
}

// Get returns the task with the given ID, or domain.ErrNotFound for
// unknown and expired IDs.
func (s *TaskStore) Get(ctx context.Context, id string) (task.Task, error) {
	var (
		t        task.Task
		listings []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, query, country, status, listings, error, created_at, updated_at
		FROM tasks
		WHERE id = $1 AND expires_at > now()`,
		id).Scan(&t.ID, &t.Query, &t.Country, &t.Status, &listings, &t.Error, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return task.Task{}, domain.ErrNotFound
		}
		return task.Task{}, fmt.Errorf("%w: get task %s: %v", domain.ErrStoreUnavailable, id, err)
	}

	if len(listings) > 0 {
		if err := json.Unmarshal(listings, &t.Listings); err != nil {
			return task.Task{}, fmt.Errorf("unmarshal listings: %w", err)
		}
	}
	return t, nil
}

// StartJanitor spawns a goroutine that deletes expired rows every
// interval. Returns a cancel function that stops the janitor.
func (s *TaskStore) StartJanitor(interval time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE expires_at <= now()`)
				if err != nil {
					slog.Error("task janitor failed", "error", err)
					continue
				}
				if tag.RowsAffected() > 0 {
					slog.Debug("task janitor removed expired rows", "count", tag.RowsAffected())
				}
			}
		}
	}()
	return cancel
}
