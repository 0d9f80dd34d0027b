package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sungwon/messaging/internal/metrics"
)

type contextKey string

const (
	tenantKey  contextKey = "tenant"
	sourceKey  contextKey = "source"
	roleKey    contextKey = "role"
	subjectKey contextKey = "subject"
)

// TenantFromContext retrieves the caller's tenant key from the request context.
// Returns an empty string if no tenant is set.
func TenantFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(tenantKey).(string); ok {
		return t
	}
	return ""
}

// SourceFromContext retrieves the caller's default contact source.
func SourceFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey).(string); ok {
		return s
	}
	return ""
}

// RoleFromContext retrieves the caller's role from the request context.
// Returns an empty string if no role is set.
func RoleFromContext(ctx context.Context) string {
	if role, ok := ctx.Value(roleKey).(string); ok {
		return role
	}
	return ""
}

// SubjectFromContext retrieves the token subject.
func SubjectFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(subjectKey).(string); ok {
		return s
	}
	return ""
}

// WithClaims stores token claims in ctx the way JWTAuth does.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	ctx = context.WithValue(ctx, tenantKey, c.Tenant)
	ctx = context.WithValue(ctx, sourceKey, c.Source)
	ctx = context.WithValue(ctx, roleKey, c.Role)
	ctx = context.WithValue(ctx, subjectKey, c.Subject)
	return ctx
}

// JWTAuth returns an HTTP middleware that validates JWT Bearer tokens
// and injects the tenant, source and role claims into the request context.
func JWTAuth(jwtService *JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, `{"error":"authorization header required"}`)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				unauthorized(w, `{"error":"invalid authorization format, expected Bearer <token>"}`)
				return
			}

			tokenStr := parts[1]
			if tokenStr == "" {
				unauthorized(w, `{"error":"empty token"}`)
				return
			}

			claims, err := jwtService.ValidateToken(tokenStr)
			if err != nil {
				unauthorized(w, `{"error":"invalid or expired token"}`)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func unauthorized(w http.ResponseWriter, body string) {
	metrics.APIAuthFailuresTotal.Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(body))
}
