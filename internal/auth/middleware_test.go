package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestValidateTokenInvalidScenarios(t *testing.T) {
	svc := NewService("test-secret-1234567890", "", time.Hour)
	other := NewService("different-secret-123", "", time.Hour)

	tokenFromOtherSecret, err := other.GenerateToken("alice")
	if err != nil {
		t.Fatalf("GenerateToken(other): %v", err)
	}
	validToken, err := svc.GenerateToken("bob")
	if err != nil {
		t.Fatalf("GenerateToken(valid): %v", err)
	}

	tests := []struct {
		name     string
		tokenStr string
	}{
		{name: "malformed token", tokenStr: "not-a-jwt"},
		{name: "wrong signing secret", tokenStr: tokenFromOtherSecret},
		{name: "tampered token", tokenStr: mutateLastByte(validToken)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tc.tokenStr)
			if err != ErrInvalidToken {
				t.Fatalf("ValidateToken() error = %v, want %v", err, ErrInvalidToken)
			}
		})
	}
}

func TestMiddlewarePassesThroughWithoutBearerToken(t *testing.T) {
	svc := NewService("test-secret-1234567890", "", time.Hour)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing auth header"},
		{name: "non bearer auth header", header: "Basic abc123"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			nextCalled := false
			handler := Middleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				nextCalled = true
				if claims := GetClaims(r.Context()); claims != nil {
					t.Fatalf("GetClaims() = %+v, want nil", claims)
				}
				w.WriteHeader(http.StatusNoContent)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if !nextCalled {
				t.Fatal("next handler was not called")
			}
			if rec.Code != http.StatusNoContent {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
			}
		})
	}
}

func TestMiddlewareRejectsInvalidBearerToken(t *testing.T) {
	svc := NewService("test-secret-1234567890", "", time.Hour)
	nextCalled := false
	handler := Middleware(svc)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		nextCalled = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if nextCalled {
		t.Fatal("next handler should not be called when token is invalid")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if !strings.Contains(rec.Body.String(), `{"error":"invalid token"}`) {
		t.Fatalf("response body = %q, want invalid token error", rec.Body.String())
	}
}

func TestMiddlewareAddsClaimsToContextForValidToken(t *testing.T) {
	svc := NewService("test-secret-1234567890", "", time.Hour)
	token, err := svc.GenerateToken("carol")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	nextCalled := false
	handler := Middleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		claims := GetClaims(r.Context())
		if claims == nil {
			t.Fatal("GetClaims() = nil, want claims")
		}
		if claims.Client != "carol" {
			t.Fatalf("claims = %+v, want client=carol", claims)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !nextCalled {
		t.Fatal("next handler was not called")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestBearerTokenParsing(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{name: "standard scheme", header: "Bearer abc123", want: "abc123", ok: true},
		{name: "lowercase scheme", header: "bearer abc123", want: "abc123", ok: true},
		{name: "missing header"},
		{name: "other scheme", header: "Basic abc123"},
		{name: "scheme without token", header: "Bearer "},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			got, ok := BearerToken(req)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("BearerToken() = (%q, %v), want (%q, %v)", got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	svc := NewService("test-secret-1234567890", "", -time.Minute)
	token, err := svc.GenerateToken("dave")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	handler := Middleware(svc)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("next handler should not be called for expired token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if !strings.Contains(rec.Body.String(), `{"error":"token expired"}`) {
		t.Fatalf("response body = %q, want token expired error", rec.Body.String())
	}
}

func mutateLastByte(token string) string {
	if token == "" {
		return token
	}
	last := token[len(token)-1]
	replacement := byte('A')
	if last == replacement {
		replacement = 'B'
	}
	return token[:len(token)-1] + string(replacement)
}
