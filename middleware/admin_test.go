package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestApplyAdmin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		secret     string
		token      string
		wantStatus int
		wantNext   bool
	}{
		{name: "health probe bypassed", path: "/healthz", secret: "s", wantStatus: 200, wantNext: true},
		{name: "missing token", path: "/api/tenants", secret: "s", wantStatus: 403},
		{name: "valid admin role", path: "/api/tenants", secret: "s", token: signedToken(t, "s", jwt.MapClaims{"sub": "1", "role": "admin"}), wantStatus: 200, wantNext: true},
		{name: "is_admin claim", path: "/api/tenants", secret: "s", token: signedToken(t, "s", jwt.MapClaims{"sub": "1", "is_admin": true}), wantStatus: 200, wantNext: true},
		{name: "non admin blocked", path: "/api/tenants", secret: "s", token: signedToken(t, "s", jwt.MapClaims{"sub": "1", "role": "member"}), wantStatus: 403},
		{name: "wrong secret", path: "/api/tenants", secret: "s", token: signedToken(t, "other", jwt.MapClaims{"sub": "1", "role": "admin"}), wantStatus: 403},
		{name: "missing secret config", path: "/api/tenants", secret: "", token: "abc", wantStatus: 500},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			nextCalled := false
			h := ApplyAdmin(tt.secret, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				nextCalled = true
				if identity, ok := AdminFromContext(r.Context()); ok {
					_ = json.NewEncoder(w).Encode(identity)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d body=%s", w.Code, tt.wantStatus, w.Body.String())
			}
			if nextCalled != tt.wantNext {
				t.Fatalf("nextCalled = %v, want %v", nextCalled, tt.wantNext)
			}
		})
	}
}

func TestAdminFromContextMissing(t *testing.T) {
	t.Parallel()
	if _, ok := AdminFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()); ok {
		t.Fatal("expected no admin identity")
	}
}

func signedToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}
