package middleware

import "net/http"

const maxRequestBodyBytes int64 = 1 << 20 // 1 MiB

// ApplyBodyLimit caps request bodies on mutating methods so a misbehaving
// client cannot buffer unbounded payloads into the API.
func ApplyBodyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}
