package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type memRateLimiter struct {
	counts map[string]int64
}

func (m *memRateLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if m.counts == nil {
		m.counts = map[string]int64{}
	}
	m.counts[scope]++
	count := m.counts[scope]
	return count <= limit, count, nil
}

func loginBody() string {
	return `{"username":"learner1","password":"hunter2-hunter2"}`
}

func serveLogin(handler http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:51234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAuthRateLimitPassesBodyThrough(t *testing.T) {
	var seen string
	policy := NewAuthRateLimitPolicy("login", time.Minute, 20, 5)
	handler := AuthRateLimit(policy, &memRateLimiter{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		seen = string(payload)
		w.WriteHeader(http.StatusOK)
	}))

	rec := serveLogin(handler, loginBody())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 under the limit, got %d", rec.Code)
	}
	if seen != loginBody() {
		t.Fatalf("handler must see the original body, got %q", seen)
	}
}

func TestAuthRateLimitBlocksAccountOverLimit(t *testing.T) {
	policy := NewAuthRateLimitPolicy("login", time.Minute, 0, 2)
	handler := AuthRateLimit(policy, &memRateLimiter{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		if rec := serveLogin(handler, loginBody()); rec.Code != http.StatusOK {
			t.Fatalf("attempt %d should pass, got %d", i+1, rec.Code)
		}
	}

	rec := serveLogin(handler, loginBody())
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 over the limit, got %d", rec.Code)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Code != "RATE_LIMIT_EXCEEDED" {
		t.Fatalf("expected RATE_LIMIT_EXCEEDED, got %q", envelope.Error.Code)
	}
}

func TestAuthRateLimitBlocksIPOverLimit(t *testing.T) {
	policy := NewAuthRateLimitPolicy("login", time.Minute, 1, 0)
	handler := AuthRateLimit(policy, &memRateLimiter{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	if rec := serveLogin(handler, loginBody()); rec.Code != http.StatusOK {
		t.Fatalf("first attempt should pass, got %d", rec.Code)
	}
	if rec := serveLogin(handler, loginBody()); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for repeated ip, got %d", rec.Code)
	}
}

func TestAuthRateLimitCountsAccountsSeparately(t *testing.T) {
	policy := NewAuthRateLimitPolicy("login", time.Minute, 0, 1)
	handler := AuthRateLimit(policy, &memRateLimiter{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	if rec := serveLogin(handler, `{"username":"alpha"}`); rec.Code != http.StatusOK {
		t.Fatalf("alpha should pass, got %d", rec.Code)
	}
	if rec := serveLogin(handler, `{"username":"beta"}`); rec.Code != http.StatusOK {
		t.Fatalf("beta should not share alpha's counter, got %d", rec.Code)
	}
	if rec := serveLogin(handler, `{"username":"alpha"}`); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for alpha's second attempt, got %d", rec.Code)
	}
}

func TestAuthRateLimitDisabledPolicyIsNoOp(t *testing.T) {
	store := &memRateLimiter{}
	policy := NewAuthRateLimitPolicy("login", 0, 20, 5)
	handler := AuthRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 10; i++ {
		if rec := serveLogin(handler, loginBody()); rec.Code != http.StatusOK {
			t.Fatalf("disabled policy must pass everything, got %d", rec.Code)
		}
	}
	if len(store.counts) != 0 {
		t.Fatalf("disabled policy must not touch the store, got %v", store.counts)
	}
}

func TestAuthRateLimitNilStoreIsNoOp(t *testing.T) {
	policy := NewAuthRateLimitPolicy("login", time.Minute, 1, 1)
	handler := AuthRateLimit(policy, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		if rec := serveLogin(handler, loginBody()); rec.Code != http.StatusOK {
			t.Fatalf("nil store must pass everything, got %d", rec.Code)
		}
	}
}
