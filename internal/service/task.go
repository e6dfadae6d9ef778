package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pricescout/pricescout/internal/adapter/otel"
	"github.com/pricescout/pricescout/internal/domain/task"
	"github.com/pricescout/pricescout/internal/port/broadcast"
	"github.com/pricescout/pricescout/internal/port/messagequeue"
	"github.com/pricescout/pricescout/internal/port/taskstore"
)

// Lifecycle event types, mirrored on WebSocket broadcasts and NATS subjects.
const (
	EventTaskCreated   = "task.created"
	EventTaskCompleted = "task.completed"
	EventTaskFailed    = "task.failed"
)

// TaskEvent is the payload published on lifecycle transitions.
type TaskEvent struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	Query    string `json:"query"`
	Country  string `json:"country"`
	Listings int    `json:"listings,omitempty"`
	Error    string `json:"error,omitempty"`
}

// terminalWriteTimeout bounds the store write that finishes a task.
const terminalWriteTimeout = 10 * time.Second

// TaskService owns the task lifecycle: create a pending record, run
// the aggregation in the background, and finish the task with exactly
// one terminal write.
type TaskService struct {
	store       taskstore.Store
	aggregator  *Aggregator
	ttl         time.Duration
	metrics     *otel.Metrics
	broadcaster broadcast.Broadcaster
	events      messagequeue.Publisher
}

// NewTaskService creates the task lifecycle service. broadcaster and
// events may be nil; lifecycle notifications are best-effort extras.
func NewTaskService(store taskstore.Store, aggregator *Aggregator, ttl time.Duration, metrics *otel.Metrics) *TaskService {
	return &TaskService{
		store:      store,
		aggregator: aggregator,
		ttl:        ttl,
		metrics:    metrics,
	}
}

// SetBroadcaster attaches a WebSocket broadcaster for lifecycle events.
func (s *TaskService) SetBroadcaster(b broadcast.Broadcaster) {
	s.broadcaster = b
}

// SetEventPublisher attaches a message queue publisher for lifecycle events.
func (s *TaskService) SetEventPublisher(p messagequeue.Publisher) {
	s.events = p
}

// Create validates the inputs, persists a pending record and launches
// the aggregation on a background goroutine detached from the request
// context. The returned task is already visible to polls.
func (s *TaskService) Create(ctx context.Context, query, country string) (task.Task, error) {
	t, err := task.New(query, country)
	if err != nil {
		return task.Task{}, err
	}

	if err := s.store.Put(ctx, t, s.ttl); err != nil {
		return task.Task{}, fmt.Errorf("persist pending task: %w", err)
	}

	s.metrics.TasksCreated.Add(ctx, 1)
	s.notify(ctx, EventTaskCreated, t)
	slog.Info("task created", "task_id", t.ID, "query", t.Query, "country", t.Country)

	go s.runTask(t)

	return t, nil
}

// Get returns the current task record. Unknown and expired IDs yield
// domain.ErrNotFound; store connectivity failures propagate as-is.
func (s *TaskService) Get(ctx context.Context, id string) (task.Task, error) {
	return s.store.Get(ctx, id)
}

// runTask drives one task to its terminal state. A panic anywhere
// below converts to a terminal failed write, so a task can never stay
// pending while its runner is gone.
func (s *TaskService) runTask(t task.Task) {
	ctx := context.Background()
	start := time.Now()

	finished := false
	defer func() {
		if r := recover(); r != nil {
			slog.Error("task runner panicked", "task_id", t.ID, "panic", r)
			if !finished {
				t.Fail("internal error")
				s.finish(ctx, t, start)
			}
		}
	}()

	listings, err := s.aggregator.Run(ctx, t)
	if err != nil {
		t.Fail(err.Error())
	} else {
		t.Complete(listings)
	}
	s.finish(ctx, t, start)
	finished = true
}

// finish performs the single terminal write and emits notifications.
func (s *TaskService) finish(ctx context.Context, t task.Task, start time.Time) {
	writeCtx, cancel := context.WithTimeout(ctx, terminalWriteTimeout)
	defer cancel()

	if err := s.store.Put(writeCtx, t, s.ttl); err != nil {
		slog.Error("terminal task write failed", "task_id", t.ID, "status", t.Status, "error", err)
		return
	}

	elapsed := time.Since(start)
	s.metrics.TaskDuration.Record(ctx, elapsed.Seconds())

	switch t.Status {
	case task.StatusCompleted:
		s.metrics.TasksCompleted.Add(ctx, 1)
		s.notify(ctx, EventTaskCompleted, t)
		slog.Info("task completed",
			"task_id", t.ID, "listings", len(t.Listings), "duration_ms", elapsed.Milliseconds())
	case task.StatusFailed:
		s.metrics.TasksFailed.Add(ctx, 1)
		s.notify(ctx, EventTaskFailed, t)
		slog.Warn("task failed",
			"task_id", t.ID, "reason", t.Error, "duration_ms", elapsed.Milliseconds())
	}
}

// notify fans a lifecycle event out to WebSocket clients and NATS.
// Both are best-effort and never affect task state.
func (s *TaskService) notify(ctx context.Context, eventType string, t task.Task) {
	event := TaskEvent{
		TaskID:   t.ID,
		Status:   string(t.Status),
		Query:    t.Query,
		Country:  t.Country,
		Listings: len(t.Listings),
		Error:    t.Error,
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastEvent(ctx, eventType, event)
	}

	if s.events != nil {
		data, err := json.Marshal(event)
		if err != nil {
			slog.Error("marshal task event", "task_id", t.ID, "error", err)
			return
		}
		subject := "tasks." + strings.TrimPrefix(eventType, "task.")
		if err := s.events.Publish(ctx, subject, data); err != nil {
			slog.Warn("publish task event failed", "task_id", t.ID, "subject", subject, "error", err)
		}
	}
}
