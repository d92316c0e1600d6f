package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func generateTestToken(t *testing.T, secret []byte, address string, expired bool) string {
	t.Helper()
	claims := &Claims{
		Address: address,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	if expired {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-1 * time.Hour))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tokenString
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_Handler_SkipPaths(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, []string{"/health"})
	handler := m.Handler(okHandler())

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestAuthMiddleware_Handler_MissingAuthHeader(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, nil)
	handler := m.Handler(okHandler())

	req := httptest.NewRequest("GET", "/api/v1/vault/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_Handler_InvalidAuthHeaderFormat(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, nil)
	handler := m.Handler(okHandler())

	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "token123"},
		{"wrong prefix", "Basic token123"},
		{"empty token", "Bearer "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/vault/stats", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestAuthMiddleware_Handler_ValidToken(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, nil)

	var capturedAddress string
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedAddress = GetAddress(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	token := generateTestToken(t, testSecret, "addr1", false)
	req := httptest.NewRequest("GET", "/api/v1/vault/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if capturedAddress != "addr1" {
		t.Errorf("address = %q, want addr1", capturedAddress)
	}
}

func TestAuthMiddleware_Handler_ExpiredToken(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, nil)
	handler := m.Handler(okHandler())

	token := generateTestToken(t, testSecret, "addr1", true)
	req := httptest.NewRequest("GET", "/api/v1/vault/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_Handler_WrongSigningKey(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, nil)
	handler := m.Handler(okHandler())

	token := generateTestToken(t, []byte("other-secret"), "addr1", false)
	req := httptest.NewRequest("GET", "/api/v1/vault/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_validateToken(t *testing.T) {
	m := NewAuthMiddleware(testSecret, nil, nil)

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{
			name:    "valid token",
			token:   generateTestToken(t, testSecret, "addr1", false),
			wantErr: false,
		},
		{
			name:    "expired token",
			token:   generateTestToken(t, testSecret, "addr1", true),
			wantErr: true,
		},
		{
			name:    "missing address claim",
			token:   generateTestToken(t, testSecret, "  ", false),
			wantErr: true,
		},
		{
			name:    "garbage token",
			token:   "invalid.token.here",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := m.validateToken(tt.token)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateToken() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && claims.Address != "addr1" {
				t.Errorf("address = %q, want addr1", claims.Address)
			}
		})
	}
}

func TestTokenGenerator_RoundTrip(t *testing.T) {
	gen := NewTokenGenerator(testSecret, time.Minute)
	token, err := gen.GenerateToken("addr1")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	m := NewAuthMiddleware(testSecret, nil, nil)
	claims, err := m.validateToken(token)
	if err != nil {
		t.Fatalf("validate generated token: %v", err)
	}
	if claims.Address != "addr1" || claims.Subject != "addr1" {
		t.Errorf("unexpected claims: %#v", claims)
	}

	if _, err := gen.GenerateToken("   "); err == nil {
		t.Errorf("expected error for blank address")
	}
}

func TestRequireAddress(t *testing.T) {
	handler := RequireAddress(okHandler())

	tests := []struct {
		name       string
		ctx        context.Context
		wantStatus int
	}{
		{
			name:       "with address",
			ctx:        context.WithValue(context.Background(), addressKey, "addr1"),
			wantStatus: http.StatusOK,
		},
		{
			name:       "without address",
			ctx:        context.Background(),
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/vault/stats", nil)
			req = req.WithContext(tt.ctx)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
