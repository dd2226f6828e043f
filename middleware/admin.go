// Package middleware guards the operator HTTP API with JWT admin auth.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type adminContextKey string

const adminIdentityContextKey adminContextKey = "admin_identity"

// AdminIdentity is extracted from a verified JWT and attached to request context.
type AdminIdentity struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	IsAdmin bool   `json:"is_admin"`
}

// ApplyAdmin enforces admin-only access on /api/* routes. Health probes
// pass through unauthenticated.
func ApplyAdmin(jwtSecret string, next http.Handler) http.Handler {
	jwtSecret = strings.TrimSpace(jwtSecret)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isAPIPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if jwtSecret == "" {
			writeError(w, http.StatusInternalServerError, "admin auth is not configured")
			return
		}

		tokenString := bearerToken(r.Header.Get("Authorization"))
		if tokenString == "" {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		claims, err := parseJWTClaims(tokenString, jwtSecret)
		if err != nil {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		identity := adminIdentityFromClaims(claims)
		if !identity.IsAdmin && !isAdminRole(identity.Role) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		ctx := context.WithValue(r.Context(), adminIdentityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminFromContext returns the admin identity injected by ApplyAdmin.
func AdminFromContext(ctx context.Context) (AdminIdentity, bool) {
	identity, ok := ctx.Value(adminIdentityContextKey).(AdminIdentity)
	return identity, ok
}

func isAPIPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func parseJWTClaims(tokenString, secret string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func adminIdentityFromClaims(claims jwt.MapClaims) AdminIdentity {
	return AdminIdentity{
		ID:      strings.TrimSpace(firstStringClaim(claims, "sub", "user_id", "userId")),
		Role:    strings.ToLower(strings.TrimSpace(firstStringClaim(claims, "role"))),
		IsAdmin: boolClaim(claims, "is_admin") || boolClaim(claims, "isAdmin"),
	}
}

func isAdminRole(role string) bool {
	switch role {
	case "admin", "operator", "super_admin", "super-admin", "superadmin":
		return true
	default:
		return false
	}
}

func firstStringClaim(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if value, ok := claims[key]; ok {
			if str, ok := value.(string); ok && strings.TrimSpace(str) != "" {
				return str
			}
		}
	}
	return ""
}

func boolClaim(claims jwt.MapClaims, key string) bool {
	value, ok := claims[key]
	if !ok {
		return false
	}

	switch typed := value.(type) {
	case bool:
		return typed
	case float64:
		return typed != 0
	case string:
		v := strings.TrimSpace(strings.ToLower(typed))
		return v == "1" || v == "true" || v == "yes"
	default:
		return false
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
