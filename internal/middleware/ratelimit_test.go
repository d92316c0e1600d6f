package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimiter_ThrottlesPerKey(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	handler := rl.Handler(okHandler())

	do := func(address string) int {
		req := httptest.NewRequest("POST", "/api/v1/vault/withdrawals", nil)
		if address != "" {
			req = req.WithContext(context.WithValue(req.Context(), addressKey, address))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do("addr1"); code != http.StatusOK {
		t.Fatalf("first request status = %d, want %d", code, http.StatusOK)
	}
	if code := do("addr1"); code != http.StatusTooManyRequests {
		t.Fatalf("burst exceeded status = %d, want %d", code, http.StatusTooManyRequests)
	}
	// A different account has its own budget.
	if code := do("addr2"); code != http.StatusOK {
		t.Fatalf("other key status = %d, want %d", code, http.StatusOK)
	}
}

func TestRateLimiter_FallsBackToRemoteAddr(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	handler := rl.Handler(okHandler())

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
}
