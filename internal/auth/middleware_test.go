package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJWTAuth_ValidToken(t *testing.T) {
	svc := newTestJWTService()
	token, err := svc.GenerateToken("billing-service", "Acme", "billing", RoleService)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	handler := JWTAuth(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if got := TenantFromContext(ctx); got != "Acme" {
			t.Errorf("TenantFromContext() = %q, want %q", got, "Acme")
		}
		if got := SourceFromContext(ctx); got != "billing" {
			t.Errorf("SourceFromContext() = %q, want %q", got, "billing")
		}
		if got := RoleFromContext(ctx); got != RoleService {
			t.Errorf("RoleFromContext() = %q, want %q", got, RoleService)
		}
		if got := SubjectFromContext(ctx); got != "billing-service" {
			t.Errorf("SubjectFromContext() = %q, want %q", got, "billing-service")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestJWTAuth_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz"},
		{name: "empty token", header: "Bearer "},
		{name: "garbage token", header: "Bearer abc.def.ghi"},
	}

	svc := newTestJWTService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := JWTAuth(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be called")
			}))

			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
		})
	}
}
