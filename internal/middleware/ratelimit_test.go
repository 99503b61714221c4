package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute)

	for i := 0; i < 5; i++ {
		if !rl.Allow("key") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("key") {
		t.Error("6th request should be denied")
	}
	if !rl.Allow("other") {
		t.Error("keys are limited independently")
	}
}

func TestRateLimiterRefill(t *testing.T) {
	rl := NewRateLimiter(2, 20*time.Millisecond)

	rl.Allow("key")
	rl.Allow("key")
	if rl.Allow("key") {
		t.Error("should be blocked once the burst is spent")
	}

	time.Sleep(25 * time.Millisecond)
	if !rl.Allow("key") {
		t.Error("should be allowed after refill")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute)

	rl.Allow("idle")
	time.Sleep(15 * time.Millisecond)
	rl.Allow("active")

	rl.Cleanup(10 * time.Millisecond)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.entries["idle"]; ok {
		t.Error("idle entry should have been cleaned up")
	}
	if _, ok := rl.entries["active"]; !ok {
		t.Error("active entry should remain")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	handler := RateLimit(rl, ClientIP(nil))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/auth/signin", nil)
		req.RemoteAddr = "192.168.1.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest("POST", "/auth/signin", nil)
	req.RemoteAddr = "192.168.1.1:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRemoteHost(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "9.9.9.9:1"
	req.Header.Set("X-Forwarded-For", "5.6.7.8")
	if got := RemoteHost(req); got != "9.9.9.9" {
		t.Errorf("RemoteHost = %q, want 9.9.9.9", got)
	}
	req.RemoteAddr = "9.9.9.9"
	if got := RemoteHost(req); got != "9.9.9.9" {
		t.Errorf("bare RemoteHost = %q, want 9.9.9.9", got)
	}
}

func TestClientIP(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	tests := []struct {
		name    string
		trusted []netip.Prefix
		headers map[string]string
		remote  string
		want    string
	}{
		{"no proxies ignores cloudflare", nil, map[string]string{"CF-Connecting-IP": "1.2.3.4"}, "9.9.9.9:1", "9.9.9.9"},
		{"no proxies ignores forwarded", nil, map[string]string{"X-Forwarded-For": "5.6.7.8"}, "9.9.9.9:1", "9.9.9.9"},
		{"untrusted peer ignores headers", trusted, map[string]string{"CF-Connecting-IP": "1.2.3.4", "X-Forwarded-For": "5.6.7.8"}, "9.9.9.9:1", "9.9.9.9"},
		{"trusted cloudflare", trusted, map[string]string{"CF-Connecting-IP": "1.2.3.4", "X-Forwarded-For": "5.6.7.8"}, "10.0.0.2:1", "1.2.3.4"},
		{"trusted forwarded", trusted, map[string]string{"X-Forwarded-For": "5.6.7.8"}, "10.0.0.2:1", "5.6.7.8"},
		{"spoofed prefix skipped", trusted, map[string]string{"X-Forwarded-For": "1.1.1.1, 5.6.7.8"}, "10.0.0.2:1", "5.6.7.8"},
		{"trusted hops skipped", trusted, map[string]string{"X-Forwarded-For": "5.6.7.8, 10.0.0.9"}, "10.0.0.2:1", "5.6.7.8"},
		{"all hops trusted", trusted, map[string]string{"X-Forwarded-For": "10.0.0.7, 10.0.0.9"}, "10.0.0.2:1", "10.0.0.7"},
		{"trusted without headers", trusted, nil, "10.0.0.2:1", "10.0.0.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(tt.trusted)(req); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	handler := RateLimit(rl, ClientIP(nil))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/auth/signin", nil)
		req.RemoteAddr = "192.168.1.1:1234"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		req.Header.Set("CF-Connecting-IP", fmt.Sprintf("198.51.100.%d", i))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", last)
	}
}
