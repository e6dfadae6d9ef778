// Package service contains the task orchestration logic: the per-source
// extraction pipeline, the fan-out aggregator and the task lifecycle.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pricescout/pricescout/internal/adapter/otel"
	"github.com/pricescout/pricescout/internal/domain/task"
	"github.com/pricescout/pricescout/internal/port/extract"
	"github.com/pricescout/pricescout/internal/port/fetch"
)

// SourceResult is the outcome of one source pipeline run. Err records
// why a source produced nothing; it is never propagated to the task.
type SourceResult struct {
	URL      string
	Listings []task.Listing
	Err      error
}

// Pipeline turns one candidate URL into zero or more validated listings.
// Failures are contained: a SourceResult always comes back.
type Pipeline struct {
	fetcher   fetch.Fetcher
	extractor extract.Extractor
	timeout   time.Duration
	metrics   *otel.Metrics
}

// NewPipeline creates a pipeline with a per-source timeout covering
// fetch and extraction together.
func NewPipeline(fetcher fetch.Fetcher, extractor extract.Extractor, timeout time.Duration, metrics *otel.Metrics) *Pipeline {
	return &Pipeline{
		fetcher:   fetcher,
		extractor: extractor,
		timeout:   timeout,
		metrics:   metrics,
	}
}

// Run fetches the page, extracts product offers and validates them.
// Individually invalid listings are dropped; any stage failure yields
// an empty result with the reason recorded on SourceResult.Err.
func (p *Pipeline) Run(ctx context.Context, taskID, url, query string) SourceResult {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ctx, span := otel.StartSourceSpan(ctx, taskID, url)
	defer span.End()

	start := time.Now()
	res := p.run(ctx, url, query)
	elapsed := time.Since(start)

	p.metrics.SourceDuration.Record(ctx, elapsed.Seconds())
	if res.Err != nil {
		p.metrics.SourcesFailed.Add(ctx, 1)
		span.SetAttributes(attribute.String("source.error", res.Err.Error()))
		slog.Debug("source pipeline failed",
			"task_id", taskID, "url", url, "error", res.Err, "duration_ms", elapsed.Milliseconds())
	} else {
		p.metrics.SourcesSucceeded.Add(ctx, 1)
		span.SetAttributes(attribute.Int("source.listings", len(res.Listings)))
		slog.Debug("source pipeline done",
			"task_id", taskID, "url", url, "listings", len(res.Listings), "duration_ms", elapsed.Milliseconds())
	}
	return res
}

func (p *Pipeline) run(ctx context.Context, url, query string) SourceResult {
	content, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return SourceResult{URL: url, Err: err}
	}

	products, err := p.extractor.Extract(ctx, content, query)
	if err != nil {
		return SourceResult{URL: url, Err: err}
	}

	listings := make([]task.Listing, 0, len(products))
	for _, prod := range products {
		l := task.Listing{
			Link:        url,
			Price:       prod.Price,
			Currency:    prod.Currency,
			ProductName: prod.ProductName,
		}
		if !l.Valid() {
			slog.Debug("dropping invalid listing", "url", url, "product", prod.ProductName)
			continue
		}
		listings = append(listings, l)
	}
	return SourceResult{URL: url, Listings: listings}
}
