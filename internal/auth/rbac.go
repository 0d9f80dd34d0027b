package auth

import (
	"net/http"
	"slices"
)

// issuedRoles are the role claims this service puts in tenant tokens.
var issuedRoles = []string{RoleAdmin, RoleService}

// RequireRole admits callers whose tenant token carries one of roles. A
// request without tenant claims, or with a role the service never issues,
// is rejected as unauthenticated. Use after JWTAuth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			role := RoleFromContext(ctx)
			if TenantFromContext(ctx) == "" || !slices.Contains(issuedRoles, role) {
				unauthorized(w, `{"error":"tenant token required"}`)
				return
			}

			if !slices.Contains(roles, role) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"role ` + role + ` may not use this endpoint"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
