// Package auth provides JWT bearer-token authentication middleware. The trust
// engine itself has no opinion about tokens; this is the capability boundary
// that decides who may act as an administrator or as a seller.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "pharmatrust/pkg/domain"
	"pharmatrust/pkg/requestcontext"
)

// Role is the capability a token grants.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleSeller Role = "seller"
	RoleUser   Role = "user"
)

// Claims are the validated claims the middleware expects from a token.
type Claims struct {
	UserID     string
	Role       Role
	IdentityID string // seller identity owned by the user, when present
}

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

type contextKeyRole struct{}

// GetRole retrieves the authenticated role from the context.
func GetRole(ctx context.Context) Role {
	if role, ok := ctx.Value(contextKeyRole{}).(Role); ok {
		return role
	}
	return ""
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":%q,"error_description":%q}`, errCode, errDesc))
}

func authenticate(r *http.Request, validator TokenValidator) (*Claims, error) {
	const bearerPrefix = "Bearer "
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
	if !ok || token == "" {
		return nil, fmt.Errorf("missing bearer token")
	}
	return validator.ValidateToken(token)
}

func withClaims(ctx context.Context, claims *Claims) context.Context {
	if userID, err := id.ParseUserID(claims.UserID); err == nil {
		ctx = requestcontext.WithUserID(ctx, userID)
	}
	if claims.IdentityID != "" {
		if identityID, err := id.ParseIdentityID(claims.IdentityID); err == nil {
			ctx = requestcontext.WithIdentityID(ctx, identityID)
		}
	}
	return context.WithValue(ctx, contextKeyRole{}, claims.Role)
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticate(r, validator)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized request",
					"request_id", requestcontext.RequestID(r.Context()),
					"error", err,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "valid bearer token required")
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth attaches claims when a valid token is present but lets
// anonymous requests pass. Scans are open to unauthenticated consumers.
func OptionalAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := authenticate(r, validator)
			if err != nil {
				logger.WarnContext(r.Context(), "ignoring invalid token on open endpoint",
					"request_id", requestcontext.RequestID(r.Context()),
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// RequireRole rejects authenticated requests whose token lacks the role.
// Admins pass every role check; the administrator capability subsumes the rest.
func RequireRole(role Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := GetRole(r.Context())
			if got != role && got != RoleAdmin {
				writeJSONError(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
