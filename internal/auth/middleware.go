package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type claimsContextKey struct{}

// BearerToken extracts the bearer credential from a request, tolerating any
// case for the scheme. The second return is false when no bearer credential
// is present at all.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// Middleware validates any presented bearer token and stores its claims in
// the request context. A request with no bearer credential passes through
// anonymous; a request that presents one gets it checked, so an expired or
// forged token is rejected rather than silently downgraded to anonymous.
func Middleware(authSvc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := authSvc.ValidateToken(token)
			if err != nil {
				message := `{"error":"invalid token"}`
				if errors.Is(err, ErrTokenExpired) {
					message = `{"error":"token expired"}`
				}
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, message, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// WithClaims stores validated claims for downstream handlers.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// GetClaims retrieves validated claims from a request context; nil means the
// request is anonymous.
func GetClaims(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsContextKey{}).(*Claims)
	return c
}
