// Package middleware holds the HTTP middleware chain of the ops API.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth validates a Bearer token or X-API-Key header against apiKey. An empty
// apiKey disables the check. Paths listed in public are always let through.
func Auth(apiKey string, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || open[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if !validToken(r, apiKey) {
				writeJSONError(w, http.StatusUnauthorized, "invalid or missing authentication token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireKey guards admin routes. Unlike Auth it fails closed: with no key
// configured every request is refused.
func RequireKey(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				writeJSONError(w, http.StatusForbidden, "admin endpoints disabled")
				return
			}
			if !validToken(r, apiKey) {
				writeJSONError(w, http.StatusUnauthorized, "invalid or missing authentication token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validToken(r *http.Request, apiKey string) bool {
	token := extractToken(r)
	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) == 1
}

// extractToken reads "Authorization: Bearer <token>" or X-API-Key.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
