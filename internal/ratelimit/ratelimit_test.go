package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg LimiterConfig) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, "feedback", cfg), mr
}

func TestMiddlewareEnforcesBurst(t *testing.T) {
	rl, _ := newTestLimiter(t, LimiterConfig{RPS: 1, Burst: 2})
	frozen := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return frozen }

	h := rl.Middleware(KeyByIP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/feedback", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
		if rr.Code == http.StatusTooManyRequests && rr.Header().Get("Retry-After") != "1" {
			t.Fatalf("missing Retry-After header")
		}
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}

	// Another client has its own bucket.
	req := httptest.NewRequest(http.MethodPost, "/api/feedback", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("second client limited: %d", rr.Code)
	}
}

func TestAllowRefills(t *testing.T) {
	rl, _ := newTestLimiter(t, LimiterConfig{RPS: 2, Burst: 1})
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	ctx := t.Context()
	if ok, err := rl.Allow(ctx, "k"); err != nil || !ok {
		t.Fatalf("first call: %v %v", ok, err)
	}
	if ok, _ := rl.Allow(ctx, "k"); ok {
		t.Fatalf("bucket should be empty")
	}
	now = now.Add(time.Second)
	if ok, err := rl.Allow(ctx, "k"); err != nil || !ok {
		t.Fatalf("bucket should refill: %v %v", ok, err)
	}
}

func TestMiddlewareFailsOpen(t *testing.T) {
	rl, mr := newTestLimiter(t, LimiterConfig{RPS: 1, Burst: 1})
	mr.Close()

	h := rl.Middleware(KeyByIP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/feedback", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected pass-through when redis is down, got %d", rr.Code)
	}
}

func TestKeyByIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:4040"
	if got := KeyByIP(req); got != "192.168.1.5" {
		t.Fatalf("KeyByIP = %q", got)
	}
	req.RemoteAddr = "192.168.1.6"
	if got := KeyByIP(req); got != "192.168.1.6" {
		t.Fatalf("KeyByIP without port = %q", got)
	}
}
