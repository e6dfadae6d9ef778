package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/pricescout/pricescout/internal/adapter/otel"
	"github.com/pricescout/pricescout/internal/domain/task"
	"github.com/pricescout/pricescout/internal/port/search"
)

// Aggregation failure reasons surfaced on failed tasks.
var (
	ErrNoSources         = errors.New("no sources found")
	ErrAllSourcesFailed  = errors.New("all sources failed")
	ErrDeadlineNoResults = errors.New("deadline exceeded before any source completed")
)

// Aggregator fans a task out across discovered sources and folds the
// results back in completion order.
type Aggregator struct {
	discoverer  search.Discoverer
	pipeline    *Pipeline
	deadline    time.Duration
	maxInFlight int64
	metrics     *otel.Metrics
}

// NewAggregator creates an aggregator. deadline bounds the whole run
// (discovery included); maxInFlight caps concurrent source pipelines.
func NewAggregator(discoverer search.Discoverer, pipeline *Pipeline, deadline time.Duration, maxInFlight int64, metrics *otel.Metrics) *Aggregator {
	return &Aggregator{
		discoverer:  discoverer,
		pipeline:    pipeline,
		deadline:    deadline,
		maxInFlight: maxInFlight,
		metrics:     metrics,
	}
}

// Run performs discovery and the bounded fan-out for one task. It
// returns the concatenated listings in source completion order, or an
// error describing why the task failed. Partial success is success: one
// completed source is enough, even with zero listings.
func (a *Aggregator) Run(ctx context.Context, t task.Task) ([]task.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, a.deadline)
	defer cancel()

	ctx, span := otel.StartAggregationSpan(ctx, t.ID, t.Query, t.Country)
	defer span.End()

	urls, err := a.discoverer.Discover(ctx, t.Query, t.Country)
	if err != nil {
		return nil, fmt.Errorf("source discovery failed: %w", err)
	}
	if len(urls) == 0 {
		return nil, ErrNoSources
	}

	span.SetAttributes(attribute.Int("aggregation.sources", len(urls)))
	slog.Info("fan-out started", "task_id", t.ID, "sources", len(urls))

	sem := semaphore.NewWeighted(a.maxInFlight)
	results := make(chan SourceResult, len(urls))

	for _, url := range urls {
		go func() {
			if err := sem.Acquire(ctx, 1); err != nil {
				// Deadline hit while queued; report as a failed source
				// so fan-in still sees one result per URL.
				results <- SourceResult{URL: url, Err: err}
				return
			}
			defer sem.Release(1)
			results <- a.pipeline.Run(ctx, t.ID, url, t.Query)
		}()
	}

	// Fan-in by completion order.
	var (
		listings  []task.Listing
		collected int
		succeeded int
	)
	collect := func(res SourceResult) {
		collected++
		if res.Err != nil {
			return
		}
		succeeded++
		listings = append(listings, res.Listings...)
	}
	for collected < len(urls) {
		select {
		case res := <-results:
			collect(res)
		case <-ctx.Done():
			// Results queued before the deadline are kept; anything
			// arriving later is discarded with the goroutines.
			drainResults(results, collect)
			slog.Warn("aggregation deadline reached",
				"task_id", t.ID, "collected", collected, "sources", len(urls))
			return a.outcome(span, listings, succeeded, collected)
		}
	}
	return a.outcome(span, listings, succeeded, collected)
}

// drainResults consumes every result already sitting in the buffered
// channel without blocking for ones still in flight.
func drainResults(results <-chan SourceResult, collect func(SourceResult)) {
	for {
		select {
		case res := <-results:
			collect(res)
		default:
			return
		}
	}
}

func (a *Aggregator) outcome(span trace.Span, listings []task.Listing, succeeded, collected int) ([]task.Listing, error) {
	span.SetAttributes(
		attribute.Int("aggregation.succeeded", succeeded),
		attribute.Int("aggregation.listings", len(listings)),
	)
	if succeeded > 0 {
		return listings, nil
	}
	if collected == 0 {
		return nil, ErrDeadlineNoResults
	}
	return nil, ErrAllSourcesFailed
}
