package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type throttleCounter struct{ count int }

func (c *throttleCounter) RecordThrottle(route, reason string) { c.count++ }

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"market": {RatePerSecond: 1, Burst: 1},
	}, nil)
	counter := &throttleCounter{}
	limiter.SetThrottleRecorder(counter)
	handler := limiter.Middleware("market")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/datasets", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
	if counter.count != 1 {
		t.Fatalf("expected one throttle to be recorded, got %d", counter.count)
	}
}

func TestRateLimiterSeparatesRoutes(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"market": {RatePerSecond: 1, Burst: 1},
		"admin":  {RatePerSecond: 1, Burst: 1},
	}, nil)
	marketHandler := limiter.Middleware("market")(okHandler())
	adminHandler := limiter.Middleware("admin")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/datasets", nil)
	req.Header.Set("X-API-Key", "tenant-A")
	res := httptest.NewRecorder()
	marketHandler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected market request to succeed, got %d", res.Code)
	}

	adminReq := httptest.NewRequest(http.MethodPost, "/v1/admin/pause", nil)
	adminReq.Header.Set("X-API-Key", "tenant-A")
	adminRes := httptest.NewRecorder()
	adminHandler.ServeHTTP(adminRes, adminReq)
	if adminRes.Code != http.StatusOK {
		t.Fatalf("expected first admin request to succeed, got %d", adminRes.Code)
	}
	adminRes = httptest.NewRecorder()
	adminHandler.ServeHTTP(adminRes, adminReq)
	if adminRes.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second admin request to hit limit, got %d", adminRes.Code)
	}
}

func TestRateLimiterAppliesRouteTokens(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"market": {
			RatePerSecond: 5,
			Burst:         5,
			DefaultTokens: 1,
			Tokens: map[string]int{
				"POST /v1/datasets/1/purchase": 3,
			},
		},
	}, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware("market")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/datasets/1/purchase", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first purchase to succeed, got %d", res.Code)
	}
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second purchase to exhaust the burst, got %d", res.Code)
	}

	// Cheaper routes still fit in the remaining two tokens.
	statusReq := httptest.NewRequest(http.MethodGet, "/v1/marketplace", nil)
	statusRes := httptest.NewRecorder()
	handler.ServeHTTP(statusRes, statusReq)
	if statusRes.Code != http.StatusOK {
		t.Fatalf("expected default-cost route to succeed, got %d", statusRes.Code)
	}
}

func TestRateLimiterKeysByPrincipal(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"market": {RatePerSecond: 1, Burst: 1},
	}, nil)
	handler := limiter.Middleware("market")(okHandler())

	var alice, bob [20]byte
	alice[19], bob[19] = 1, 2
	for _, principal := range [][20]byte{alice, bob} {
		req := httptest.NewRequest(http.MethodGet, "/v1/datasets", nil)
		req = req.WithContext(context.WithValue(req.Context(), ContextKeyPrincipal, principal))
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("expected each principal to get its own bucket, got %d", res.Code)
		}
	}
}

func TestRateLimiterSweepsIdleVisitors(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"market": {RatePerSecond: 1, Burst: 1},
	}, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }
	limiter.obtainLimiter("a", RateLimit{})
	now = now.Add(2 * visitorIdleTTL)
	limiter.obtainLimiter("b", RateLimit{})
	if _, ok := limiter.visitors["a"]; ok {
		t.Fatalf("idle visitor should have been swept")
	}
	if len(limiter.visitors) != 1 {
		t.Fatalf("unexpected visitors: %d", len(limiter.visitors))
	}
}
