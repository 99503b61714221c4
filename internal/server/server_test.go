package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/village/internal/config"
	"github.com/dukerupert/village/internal/database"
	"github.com/dukerupert/village/internal/email"
	"github.com/dukerupert/village/internal/logging"
	"github.com/dukerupert/village/internal/middleware"
	"github.com/dukerupert/village/internal/storage"
)

func setupRouter(t *testing.T) http.Handler {
	return setupRouterWith(t, nil)
}

func setupRouterWith(t *testing.T, mutate func(*config.Config)) http.Handler {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Env:     "development",
		BaseURL: "http://localhost:8080",
		Auth: config.AuthConfig{
			JWTSecret:      "test-secret",
			SessionTTL:     time.Hour,
			AccessTokenTTL: time.Minute,
		},
		Scheduler: config.SchedulerConfig{CleanupAfter: time.Hour},
	}
	if mutate != nil {
		mutate(cfg)
	}
	logger := logging.Discard()
	srv := New(db, cfg, email.NewClient("", "", ""), storage.New(storage.Config{}, logger), logger)
	return srv.Router()
}

func do(t *testing.T, h http.Handler, method, target, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := setupRouter(t)

	rec := do(t, h, "GET", "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := setupRouter(t)
	do(t, h, "GET", "/health", "", nil)

	rec := do(t, h, "GET", "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "village_http_requests_total") {
		t.Error("metrics output missing request counter")
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	h := setupRouter(t)

	for _, target := range []string{"/api/tasks", "/api/village/overview", "/auth/session", "/ws"} {
		rec := do(t, h, "GET", target, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s status = %d, want 401", target, rec.Code)
		}
	}
}

func TestSignUpThenUseSessionAndToken(t *testing.T) {
	h := setupRouter(t)

	rec := do(t, h, "POST", "/auth/signup",
		`{"email":"sam@example.com","password":"long enough","name":"Sam","household_name":"The Rivers"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("signup did not set a session cookie")
	}
	var signup struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&signup); err != nil {
		t.Fatalf("decode signup: %v", err)
	}

	withCookie := func(r *http.Request) { r.AddCookie(cookie) }
	rec = do(t, h, "POST", "/api/tasks", `{"title":"Call the pediatrician","due_date":"2026-10-15"}`, withCookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create task status = %d, body = %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, "GET", "/api/village/overview", "", withCookie)
	if rec.Code != http.StatusOK {
		t.Errorf("overview status = %d, body = %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, "PUT", "/api/household", `{"name":"The River Family"}`, withCookie)
	if rec.Code != http.StatusOK {
		t.Errorf("admin household update status = %d, body = %s", rec.Code, rec.Body.String())
	}

	if signup.AccessToken == "" {
		t.Fatal("signup returned no access token")
	}
	rec = do(t, h, "GET", "/auth/session", "", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+signup.AccessToken)
	})
	if rec.Code != http.StatusOK {
		t.Errorf("bearer session status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	h := setupRouter(t)
	body := `{"email":"nobody@example.com","password":"wrong password"}`
	fromClient := func(r *http.Request) { r.RemoteAddr = "192.0.2.7:4321" }

	for i := range authRateLimit {
		rec := do(t, h, "POST", "/auth/signin", body, fromClient)
		if rec.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d rate limited early", i+1)
		}
	}
	rec := do(t, h, "POST", "/auth/signin", body, fromClient)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	other := do(t, h, "POST", "/auth/signin", body, func(r *http.Request) { r.RemoteAddr = "192.0.2.8:4321" })
	if other.Code == http.StatusTooManyRequests {
		t.Error("a different client should not share the limit")
	}
}

func TestRateLimitIgnoresForwardedHeadersFromUntrustedPeer(t *testing.T) {
	h := setupRouter(t)
	body := `{"email":"nobody@example.com","password":"wrong password"}`

	var rec *httptest.ResponseRecorder
	for i := range authRateLimit + 1 {
		rec = do(t, h, "POST", "/auth/signin", body, func(r *http.Request) {
			r.RemoteAddr = "192.0.2.7:4321"
			r.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
			r.Header.Set("CF-Connecting-IP", fmt.Sprintf("198.51.100.%d", i))
		})
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429 despite rotating forwarded headers", rec.Code)
	}
}

func TestRateLimitHonorsTrustedProxy(t *testing.T) {
	h := setupRouterWith(t, func(cfg *config.Config) {
		cfg.TrustedProxies = []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	})
	body := `{"email":"nobody@example.com","password":"wrong password"}`
	viaProxy := func(client string) func(*http.Request) {
		return func(r *http.Request) {
			r.RemoteAddr = "10.0.0.2:443"
			r.Header.Set("X-Forwarded-For", client)
		}
	}

	for range authRateLimit {
		do(t, h, "POST", "/auth/signin", body, viaProxy("203.0.113.1"))
	}
	if rec := do(t, h, "POST", "/auth/signin", body, viaProxy("203.0.113.1")); rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429 for the exhausted client", rec.Code)
	}
	if rec := do(t, h, "POST", "/auth/signin", body, viaProxy("203.0.113.2")); rec.Code == http.StatusTooManyRequests {
		t.Error("a different client behind the same proxy should not share the limit")
	}
}

func TestMetricsLabelByRoutePattern(t *testing.T) {
	h := setupRouter(t)

	for i := range 20 {
		do(t, h, "GET", fmt.Sprintf("/wp-admin/scan-%d.php", i), "", nil)
		do(t, h, "GET", fmt.Sprintf("/api/tasks/%d", 1000+i), "", nil)
	}
	do(t, h, "GET", "/health", "", nil)

	text := do(t, h, "GET", "/metrics", "", nil).Body.String()
	if strings.Contains(text, "/wp-admin") || strings.Contains(text, `path="/api/tasks/10`) {
		t.Error("metrics labelled with a raw request path")
	}
	if !strings.Contains(text, `path="other",status="401"`) {
		t.Error("unauthenticated requests not collapsed into the other route")
	}
	if !strings.Contains(text, `village_http_requests_total{method="GET",path="/health",status="200"}`) {
		t.Error("health route missing from metrics")
	}
}
