package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthNoKeysPassesThrough(t *testing.T) {
	var called bool
	h := Auth(nil)(okHandler(&called))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("called=%v status=%d", called, rec.Code)
	}
}

func TestAuthBearerToken(t *testing.T) {
	var called bool
	h := Auth([]string{"key-a", "key-b"})(okHandler(&called))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer key-b")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if !called {
		t.Fatal("valid bearer token was rejected")
	}
}

func TestAuthAPIKeyHeader(t *testing.T) {
	var called bool
	h := Auth([]string{"key-a"})(okHandler(&called))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-API-Key", "key-a")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if !called {
		t.Fatal("valid X-API-Key was rejected")
	}
}

func TestAuthRejects(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"no token", func(*http.Request) {}},
		{"wrong token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }},
		{"wrong scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic key-a") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			h := Auth([]string{"key-a"})(okHandler(&called))

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(r)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)

			if called {
				t.Fatal("handler reached without valid credentials")
			}
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestIdentityInjectsUserID(t *testing.T) {
	var got string
	h := Identity()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = UserID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-User-ID", "  u1  ")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if got != "u1" {
		t.Fatalf("UserID = %q, want trimmed u1", got)
	}
}

func TestIdentityAbsentHeader(t *testing.T) {
	var got string
	h := Identity()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = UserID(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got != "" {
		t.Fatalf("UserID = %q, want empty", got)
	}
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

func (f *fakeLimiter) Wait(context.Context, string) error { return nil }

func TestRateLimitBlocks(t *testing.T) {
	var called bool
	limiter := &fakeLimiter{allow: false}
	h := RateLimit(limiter, 10, time.Minute)(okHandler(&called))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if called {
		t.Fatal("handler reached past an exhausted limit")
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 lacks Retry-After header")
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	var called bool
	limiter := &fakeLimiter{allow: false, err: context.DeadlineExceeded}
	h := RateLimit(limiter, 10, time.Minute)(okHandler(&called))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("limiter errors must fail open: called=%v status=%d", called, rec.Code)
	}
}

func TestRateLimitKeysByUserThenIP(t *testing.T) {
	limiter := &fakeLimiter{allow: true}
	var called bool
	h := Identity()(RateLimit(limiter, 10, time.Minute)(okHandler(&called)))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-User-ID", "u1")
	h.ServeHTTP(httptest.NewRecorder(), r)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if len(limiter.keys) != 2 {
		t.Fatalf("limiter saw %d keys", len(limiter.keys))
	}
	if limiter.keys[0] != "api:user:u1" {
		t.Errorf("key = %q, want api:user:u1", limiter.keys[0])
	}
	if limiter.keys[1] != "api:ip:203.0.113.9" {
		t.Errorf("key = %q, want api:ip:203.0.113.9", limiter.keys[1])
	}
}
