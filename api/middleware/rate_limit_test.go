package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type countingLimiter struct {
	counts map[string]int64
	scopes []string
}

func (c *countingLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if c.counts == nil {
		c.counts = map[string]int64{}
	}
	c.counts[scope]++
	c.scopes = append(c.scopes, scope)
	return c.counts[scope] <= limit, c.counts[scope], nil
}

func TestRateLimitBlocksAfterLimit(t *testing.T) {
	store := &countingLimiter{}
	policy := NewRateLimitPolicy("Webhooks", time.Minute, 2)
	handler := RateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payments", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
	if store.scopes[0] != "webhooks:ip:10.0.0.1" {
		t.Fatalf("unexpected scope %s", store.scopes[0])
	}
}

func TestRateLimitKeysByUser(t *testing.T) {
	store := &countingLimiter{}
	handler := RateLimit(NewRateLimitPolicy("orders", time.Minute, 5), store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/orders/create", nil)
	req = req.WithContext(WithUserID(req.Context(), "user-1"))
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(store.scopes) != 1 || store.scopes[0] != "orders:user:user-1" {
		t.Fatalf("expected user scope, got %v", store.scopes)
	}
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	store := &countingLimiter{}
	handler := RateLimit(NewRateLimitPolicy("off", 0, 0), store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusNoContent || len(store.scopes) != 0 {
		t.Fatalf("expected pass-through, code=%d scopes=%v", resp.Code, store.scopes)
	}
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", " 9.9.9.9 , 8.8.8.8")
	if ip := clientIP(req); ip != "9.9.9.9" {
		t.Fatalf("expected forwarded ip, got %s", ip)
	}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "7.7.7.7:80"
	if ip := clientIP(req); ip != "7.7.7.7" {
		t.Fatalf("expected remote addr ip, got %s", ip)
	}
}
