package middleware

import (
	"net/http"
	"strings"

	"jobdeck/internal/auth"
)

// RequireToken rejects requests without a valid bearer token. A nil verifier lets everything through.
func RequireToken(v *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if v == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, "Missing authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeError(w, "Invalid authorization header", http.StatusUnauthorized)
				return
			}

			if !v.Verify(parts[1]) {
				writeError(w, "Invalid authorization token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
