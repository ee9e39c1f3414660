package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mcoot/dealgame/internal/api/apierr"
	"github.com/mcoot/dealgame/internal/model"
	"github.com/mcoot/dealgame/internal/services/auth"
)

type contextKey string

const principalContextKey contextKey = "principal"

// Auth rejects requests without a valid bearer token
func Auth(verifier auth.PrincipalVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}

			principal, err := verifier.VerifyPrincipal(r.Context(), token)
			if err != nil {
				apierr.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// OptionalAuth attaches the principal when a valid token is present and
// otherwise serves the request anonymously
func OptionalAuth(verifier auth.PrincipalVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := extractToken(r); token != "" {
				if principal, err := verifier.VerifyPrincipal(r.Context(), token); err == nil {
					r = r.WithContext(WithPrincipal(r.Context(), principal))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractToken reads the Authorization header, falling back to the token
// query parameter for websocket clients that cannot set headers
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// WithPrincipal returns a context carrying principal
func WithPrincipal(ctx context.Context, principal model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// GetPrincipal returns the authenticated principal, or nil for anonymous requests
func GetPrincipal(ctx context.Context) *model.Principal {
	principal, ok := ctx.Value(principalContextKey).(model.Principal)
	if !ok {
		return nil
	}
	return &principal
}

// MustGetPrincipal returns the authenticated principal or panics
func MustGetPrincipal(ctx context.Context) model.Principal {
	principal := GetPrincipal(ctx)
	if principal == nil {
		panic("no principal in context - auth middleware not applied?")
	}
	return *principal
}
