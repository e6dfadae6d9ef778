package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pricescout/pricescout/internal/adapter/memstore"
	"github.com/pricescout/pricescout/internal/domain"
	"github.com/pricescout/pricescout/internal/domain/task"
)

type panicDiscoverer struct{}

func (panicDiscoverer) Discover(context.Context, string, string) ([]string, error) {
	panic("boom")
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *recordingPublisher) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.subjects...)
}

func newService(t *testing.T, d *fakeDiscoverer, f *perURLFetcher) (*TaskService, *memstore.Store) {
	t.Helper()
	m := newMetrics(t)
	p := NewPipeline(f, contentExtractor{}, time.Second, m)
	agg := NewAggregator(d, p, 2*time.Second, 4, m)
	store := memstore.New()
	return NewTaskService(store, agg, time.Hour, m), store
}

// waitTerminal polls the service until the task leaves pending.
func waitTerminal(t *testing.T, svc *TaskService, id string) task.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := svc.Get(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if got.Terminal() {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("task %s never reached a terminal state", id)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCreateReturnsPendingImmediately(t *testing.T) {
	f := &perURLFetcher{
		content: map[string]string{"https://a.example": "offer"},
		delays:  map[string]time.Duration{"https://a.example": 100 * time.Millisecond},
	}
	svc, _ := newService(t, &fakeDiscoverer{urls: []string{"https://a.example"}}, f)

	tk, err := svc.Create(context.Background(), "ssd", "us")
	if err != nil {
		t.Fatal(err)
	}
	if tk.ID == "" {
		t.Fatal("expected task id")
	}
	if tk.Country != "US" {
		t.Fatalf("expected normalized country, got %s", tk.Country)
	}

	got, err := svc.Get(context.Background(), tk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != task.StatusPending && !got.Terminal() {
		t.Fatalf("unexpected status %s", got.Status)
	}

	waitTerminal(t, svc, tk.ID)
}

func TestCreateValidation(t *testing.T) {
	svc, store := newService(t, &fakeDiscoverer{}, &perURLFetcher{})

	_, err := svc.Create(context.Background(), "", "US")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatal("rejected request must not persist a task")
	}
}

func TestGetUnknownTask(t *testing.T) {
	svc, _ := newService(t, &fakeDiscoverer{}, &perURLFetcher{})

	_, err := svc.Get(context.Background(), "11111111-1111-1111-1111-111111111111")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// One source yields a product, one errors, one finds nothing: the task
// completes with the single extracted listing.
func TestMixedSourcesCompleteWithPartialResults(t *testing.T) {
	f := &perURLFetcher{
		content: map[string]string{
			"https://store-a.example": "boAt Airdopes 311 Pro",
			"https://store-c.example": "",
		},
		errs: map[string]error{
			"https://store-b.example": errors.New("403 forbidden"),
		},
	}
	d := &fakeDiscoverer{urls: []string{
		"https://store-a.example", "https://store-b.example", "https://store-c.example",
	}}
	svc, _ := newService(t, d, f)

	tk, err := svc.Create(context.Background(), "boAt Airdopes 311 Pro", "IN")
	if err != nil {
		t.Fatal(err)
	}

	got := waitTerminal(t, svc, tk.ID)
	if got.Status != task.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", got.Status, got.Error)
	}
	if len(got.Listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(got.Listings))
	}
	if got.Listings[0].Link != "https://store-a.example" {
		t.Fatalf("unexpected listing %+v", got.Listings[0])
	}
	if got.Error != "" {
		t.Fatalf("completed task must not carry an error, got %q", got.Error)
	}
}

func TestAllSourcesFailedFailsTask(t *testing.T) {
	f := &perURLFetcher{errs: map[string]error{
		"https://a.example": errors.New("503"),
		"https://b.example": errors.New("503"),
	}}
	svc, _ := newService(t, &fakeDiscoverer{urls: []string{"https://a.example", "https://b.example"}}, f)

	tk, err := svc.Create(context.Background(), "ssd", "US")
	if err != nil {
		t.Fatal(err)
	}

	got := waitTerminal(t, svc, tk.ID)
	if got.Status != task.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.Error == "" {
		t.Fatal("failed task must carry a reason")
	}
	if got.Listings != nil {
		t.Fatalf("failed task must not carry listings, got %+v", got.Listings)
	}
}

func TestEmptyDiscoveryFailsTask(t *testing.T) {
	svc, _ := newService(t, &fakeDiscoverer{urls: nil}, &perURLFetcher{})

	tk, err := svc.Create(context.Background(), "obscure widget", "US")
	if err != nil {
		t.Fatal(err)
	}

	got := waitTerminal(t, svc, tk.ID)
	if got.Status != task.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.Error != ErrNoSources.Error() {
		t.Fatalf("unexpected reason %q", got.Error)
	}
}

func TestPanicConvertsToFailedTask(t *testing.T) {
	m := newMetrics(t)
	p := NewPipeline(&perURLFetcher{}, contentExtractor{}, time.Second, m)
	agg := NewAggregator(panicDiscoverer{}, p, time.Second, 4, m)
	store := memstore.New()
	svc := NewTaskService(store, agg, time.Hour, m)

	tk, err := svc.Create(context.Background(), "ssd", "US")
	if err != nil {
		t.Fatal(err)
	}

	got := waitTerminal(t, svc, tk.ID)
	if got.Status != task.StatusFailed {
		t.Fatalf("expected failed after panic, got %s", got.Status)
	}
	if got.Error != "internal error" {
		t.Fatalf("unexpected reason %q", got.Error)
	}
}

func TestLifecycleEventsPublished(t *testing.T) {
	f := &perURLFetcher{content: map[string]string{"https://a.example": "offer"}}
	svc, _ := newService(t, &fakeDiscoverer{urls: []string{"https://a.example"}}, f)

	pub := &recordingPublisher{}
	svc.SetEventPublisher(pub)

	tk, err := svc.Create(context.Background(), "ssd", "US")
	if err != nil {
		t.Fatal(err)
	}
	waitTerminal(t, svc, tk.ID)

	deadline := time.Now().Add(2 * time.Second)
	for len(pub.seen()) < 2 {
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	subjects := pub.seen()
	if len(subjects) != 2 {
		t.Fatalf("expected created+completed events, got %v", subjects)
	}
	if subjects[0] != "tasks.created" || subjects[1] != "tasks.completed" {
		t.Fatalf("unexpected subjects %v", subjects)
	}
}
