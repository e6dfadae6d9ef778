package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// maxTrackedClients bounds the visitor map so an address-spoofing flood
// cannot exhaust memory. New clients beyond the bound are rejected.
const maxTrackedClients = 100000

// visitor is the token-bucket state for one client address.
type visitor struct {
	tokens   float64
	lastSeen time.Time
}

// refill credits tokens for the time elapsed since the last request,
// capped at the burst size.
func (v *visitor) refill(now time.Time, rate, burst float64) {
	v.tokens = math.Min(burst, v.tokens+now.Sub(v.lastSeen).Seconds()*rate)
	v.lastSeen = now
}

// RateLimiter applies a per-client token bucket keyed by remote IP.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     float64
	burst    float64
	now      func() time.Time // for testing
}

// NewRateLimiter creates a limiter with the given sustained rate in
// requests per second and burst size.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		burst:    float64(burst),
		now:      time.Now,
	}
}

// Handler returns middleware that rejects over-limit requests with 429
// and a Retry-After hint.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		retryAfter, ok := rl.take(clientKey(r))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// take consumes one token for the key. When the bucket is empty it
// reports how long until the next token accrues.
func (rl *RateLimiter) take(key string) (retryAfter time.Duration, ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, tracked := rl.visitors[key]
	if !tracked {
		if len(rl.visitors) >= maxTrackedClients {
			return time.Second, false
		}
		v = &visitor{tokens: rl.burst, lastSeen: now}
		rl.visitors[key] = v
	} else {
		v.refill(now, rl.rate, rl.burst)
	}

	if v.tokens < 1 {
		wait := (1 - v.tokens) / rl.rate
		return time.Duration(wait * float64(time.Second)), false
	}
	v.tokens--
	return 0, true
}

// StartCleanup spawns a goroutine that forgets idle clients every
// interval. Returns a cancel function that stops it.
func (rl *RateLimiter) StartCleanup(interval, maxIdle time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.forgetIdle(maxIdle)
			}
		}
	}()
	return cancel
}

func (rl *RateLimiter) forgetIdle(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-maxIdle)
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
		}
	}
}

// Len returns the number of tracked clients (for testing).
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// clientKey derives the limiter key from RemoteAddr. Proxy headers are
// not consulted; chi's RealIP middleware rewrites RemoteAddr upstream
// when the deployment trusts its proxies.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
