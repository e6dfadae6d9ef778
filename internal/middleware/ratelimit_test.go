package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func doRequest(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	h := rl.Handler(okHandler())

	for i := 0; i < 3; i++ {
		if rec := doRequest(h, "10.0.0.1:1234"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
}

func TestRateLimiterRejectsOverBurst(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	h := rl.Handler(okHandler())

	doRequest(h, "10.0.0.2:1234")
	doRequest(h, "10.0.0.2:1234")

	rec := doRequest(h, "10.0.0.2:1234")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestRateLimiterRefillsOverTime(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Now()
	rl.now = func() time.Time { return now }
	h := rl.Handler(okHandler())

	doRequest(h, "10.0.0.6:1234")
	if rec := doRequest(h, "10.0.0.6:1234"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 with empty bucket, got %d", rec.Code)
	}

	now = now.Add(2 * time.Second)
	if rec := doRequest(h, "10.0.0.6:1234"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after refill, got %d", rec.Code)
	}
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	h := rl.Handler(okHandler())

	doRequest(h, "10.0.0.3:1234")
	if rec := doRequest(h, "10.0.0.3:1234"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for exhausted client, got %d", rec.Code)
	}

	if rec := doRequest(h, "10.0.0.4:1234"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for fresh client, got %d", rec.Code)
	}
}

func TestRateLimiterForgetsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Now()
	rl.now = func() time.Time { return now }
	h := rl.Handler(okHandler())

	doRequest(h, "10.0.0.5:1234")
	if rl.Len() != 1 {
		t.Fatalf("expected 1 tracked client, got %d", rl.Len())
	}

	now = now.Add(time.Hour)
	rl.forgetIdle(time.Minute)

	if rl.Len() != 0 {
		t.Fatalf("expected idle clients forgotten, got %d", rl.Len())
	}
}
