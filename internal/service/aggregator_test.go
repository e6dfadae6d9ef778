package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pricescout/pricescout/internal/domain/task"
	"github.com/pricescout/pricescout/internal/port/extract"
)

type fakeDiscoverer struct {
	urls []string
	err  error
}

func (f *fakeDiscoverer) Discover(_ context.Context, _, _ string) ([]string, error) {
	return f.urls, f.err
}

// perURLFetcher serves canned content, errors or delays per URL.
type perURLFetcher struct {
	content map[string]string
	errs    map[string]error
	delays  map[string]time.Duration

	mu          sync.Mutex
	inFlight    int
	maxInFlight int
}

func (f *perURLFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if d := f.delays[url]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := f.errs[url]; err != nil {
		return "", err
	}
	return f.content[url], nil
}

// contentExtractor returns one product whose name is the page content.
type contentExtractor struct{}

func (contentExtractor) Extract(_ context.Context, content, _ string) ([]extract.Product, error) {
	if content == "" {
		return nil, nil
	}
	return []extract.Product{{ProductName: content, Price: 10, Currency: "USD"}}, nil
}

func testTask(t *testing.T) task.Task {
	t.Helper()
	tk, err := task.New("boAt Airdopes 311 Pro", "IN")
	if err != nil {
		t.Fatal(err)
	}
	return tk
}

func newAggregator(t *testing.T, d *fakeDiscoverer, f *perURLFetcher, deadline time.Duration, maxInFlight int64) *Aggregator {
	t.Helper()
	m := newMetrics(t)
	p := NewPipeline(f, contentExtractor{}, deadline, m)
	return NewAggregator(d, p, deadline, maxInFlight, m)
}

func TestAggregatorPartialSuccess(t *testing.T) {
	f := &perURLFetcher{
		content: map[string]string{"https://a.example": "offer-a"},
		errs:    map[string]error{"https://b.example": errors.New("503")},
	}
	agg := newAggregator(t, &fakeDiscoverer{urls: []string{"https://a.example", "https://b.example"}}, f, time.Second, 4)

	listings, err := agg.Run(context.Background(), testTask(t))
	if err != nil {
		t.Fatalf("partial success must not fail the task: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(listings))
	}
	if listings[0].ProductName != "offer-a" {
		t.Fatalf("unexpected listing %+v", listings[0])
	}
}

func TestAggregatorSuccessWithZeroListings(t *testing.T) {
	// Sources complete fine but extract nothing: still a completed task.
	f := &perURLFetcher{content: map[string]string{"https://a.example": ""}}
	agg := newAggregator(t, &fakeDiscoverer{urls: []string{"https://a.example"}}, f, time.Second, 4)

	listings, err := agg.Run(context.Background(), testTask(t))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(listings) != 0 {
		t.Fatalf("expected no listings, got %d", len(listings))
	}
}

func TestAggregatorAllSourcesFailed(t *testing.T) {
	f := &perURLFetcher{errs: map[string]error{
		"https://a.example": errors.New("503"),
		"https://b.example": errors.New("timeout"),
	}}
	agg := newAggregator(t, &fakeDiscoverer{urls: []string{"https://a.example", "https://b.example"}}, f, time.Second, 4)

	_, err := agg.Run(context.Background(), testTask(t))
	if !errors.Is(err, ErrAllSourcesFailed) {
		t.Fatalf("expected ErrAllSourcesFailed, got %v", err)
	}
}

func TestAggregatorDiscoveryError(t *testing.T) {
	agg := newAggregator(t, &fakeDiscoverer{err: errors.New("quota exceeded")}, &perURLFetcher{}, time.Second, 4)

	_, err := agg.Run(context.Background(), testTask(t))
	if err == nil || !strings.Contains(err.Error(), "source discovery failed") {
		t.Fatalf("expected discovery failure, got %v", err)
	}
}

func TestAggregatorNoSources(t *testing.T) {
	agg := newAggregator(t, &fakeDiscoverer{urls: nil}, &perURLFetcher{}, time.Second, 4)

	_, err := agg.Run(context.Background(), testTask(t))
	if !errors.Is(err, ErrNoSources) {
		t.Fatalf("expected ErrNoSources, got %v", err)
	}
}

func TestAggregatorDeadlineWithoutResults(t *testing.T) {
	f := &perURLFetcher{delays: map[string]time.Duration{
		"https://slow.example": time.Second,
	}}
	agg := newAggregator(t, &fakeDiscoverer{urls: []string{"https://slow.example"}}, f, 50*time.Millisecond, 4)

	start := time.Now()
	_, err := agg.Run(context.Background(), testTask(t))
	if err == nil {
		t.Fatal("expected failure")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("deadline did not bound the run")
	}
}

func TestAggregatorDeadlineKeepsPartialResults(t *testing.T) {
	f := &perURLFetcher{
		content: map[string]string{"https://fast.example": "offer-fast"},
		delays: map[string]time.Duration{
			"https://slow.example": 5 * time.Second,
		},
	}
	// Pipeline timeout larger than the aggregator deadline so the slow
	// source is cut off by the global deadline, not its own.
	m := newMetrics(t)
	p := NewPipeline(f, contentExtractor{}, 10*time.Second, m)
	agg := NewAggregator(&fakeDiscoverer{urls: []string{"https://fast.example", "https://slow.example"}}, p, 200*time.Millisecond, 4, m)

	listings, err := agg.Run(context.Background(), testTask(t))
	if err != nil {
		t.Fatalf("expected completed with partial results, got %v", err)
	}
	if len(listings) != 1 || listings[0].ProductName != "offer-fast" {
		t.Fatalf("unexpected listings %+v", listings)
	}
}

// Results already queued when the deadline fires must still count
// toward the outcome instead of being thrown away with the in-flight
// work.
func TestDrainCollectsQueuedResults(t *testing.T) {
	results := make(chan SourceResult, 4)
	results <- SourceResult{URL: "https://a.example", Listings: []task.Listing{
		{Link: "https://a.example", Price: 10, Currency: "USD", ProductName: "offer-a"},
	}}
	results <- SourceResult{URL: "https://b.example", Err: errors.New("503")}
	results <- SourceResult{URL: "https://c.example", Listings: []task.Listing{
		{Link: "https://c.example", Price: 12, Currency: "USD", ProductName: "offer-c"},
	}}

	var collected []SourceResult
	drainResults(results, func(res SourceResult) {
		collected = append(collected, res)
	})

	if len(collected) != 3 {
		t.Fatalf("expected 3 queued results, got %d", len(collected))
	}
	if collected[0].URL != "https://a.example" || collected[2].URL != "https://c.example" {
		t.Fatalf("unexpected drain order %+v", collected)
	}

	// Nothing else queued: drain must return instead of blocking.
	done := make(chan struct{})
	go func() {
		drainResults(results, func(SourceResult) { t.Error("drained from an empty channel") })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drain blocked on an empty channel")
	}
}

func TestAggregatorBoundedConcurrency(t *testing.T) {
	urls := []string{
		"https://s1.example", "https://s2.example", "https://s3.example",
		"https://s4.example", "https://s5.example", "https://s6.example",
	}
	delays := make(map[string]time.Duration, len(urls))
	content := make(map[string]string, len(urls))
	for _, u := range urls {
		delays[u] = 30 * time.Millisecond
		content[u] = "offer"
	}
	f := &perURLFetcher{content: content, delays: delays}
	agg := newAggregator(t, &fakeDiscoverer{urls: urls}, f, 5*time.Second, 2)

	if _, err := agg.Run(context.Background(), testTask(t)); err != nil {
		t.Fatal(err)
	}

	if f.maxInFlight > 2 {
		t.Fatalf("expected at most 2 concurrent fetches, observed %d", f.maxInFlight)
	}
}

func TestAggregatorCompletionOrder(t *testing.T) {
	f := &perURLFetcher{
		content: map[string]string{
			"https://slow.example": "offer-slow",
			"https://fast.example": "offer-fast",
		},
		delays: map[string]time.Duration{
			"https://slow.example": 150 * time.Millisecond,
		},
	}
	agg := newAggregator(t, &fakeDiscoverer{urls: []string{"https://slow.example", "https://fast.example"}}, f, 5*time.Second, 4)

	listings, err := agg.Run(context.Background(), testTask(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(listings))
	}
	if listings[0].ProductName != "offer-fast" || listings[1].ProductName != "offer-slow" {
		t.Fatalf("expected completion order fast,slow; got %+v", listings)
	}
}
