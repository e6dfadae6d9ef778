package googlecse_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pricescout/pricescout/internal/adapter/googlecse"
	"github.com/pricescout/pricescout/internal/config"
	"github.com/pricescout/pricescout/internal/resilience"
)

func newClient(endpoint string) *googlecse.Client {
	return googlecse.NewClient(config.Google{
		Endpoint:   endpoint,
		APIKey:     "test-key",
		EngineID:   "test-cx",
		MaxResults: 5,
	})
}

func TestDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("q"); got != "buy boAt Airdopes 311 Pro" {
			t.Errorf("unexpected q param: %q", got)
		}
		if got := q.Get("gl"); got != "in" {
			t.Errorf("unexpected gl param: %q", got)
		}
		if got := q.Get("num"); got != "5" {
			t.Errorf("unexpected num param: %q", got)
		}
		if got := q.Get("key"); got != "test-key" {
			t.Errorf("unexpected key param: %q", got)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"link":"https://store-a.example/airdopes"},
			{"link":"https://store-b.example/airdopes"},
			{"link":""}
		]}`))
	}))
	defer srv.Close()

	client := newClient(srv.URL)
	links, err := client.Discover(context.Background(), "boAt Airdopes 311 Pro", "IN")
	if err != nil {
		t.Fatal(err)
	}

	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(links))
	}
	if links[0] != "https://store-a.example/airdopes" {
		t.Fatalf("unexpected first link %s", links[0])
	}
}

func TestDiscoverNoItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	links, err := newClient(srv.URL).Discover(context.Background(), "obscure thing", "US")
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 0 {
		t.Fatalf("expected no links, got %d", len(links))
	}
}

func TestDiscoverAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"code":429}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).Discover(context.Background(), "x", "US")
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
}

func TestDiscoverBreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newClient(srv.URL)
	client.SetBreaker(resilience.NewBreaker("search", 2, time.Minute))
	ctx := context.Background()

	_, _ = client.Discover(ctx, "x", "US")
	_, _ = client.Discover(ctx, "x", "US")

	_, err := client.Discover(ctx, "x", "US")
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected circuit open error, got %v", err)
	}
}
