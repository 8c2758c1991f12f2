package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth guards the interviewer-facing routes with a static API token.
// The comparison is constant-time; the health endpoint stays outside this
// middleware so probes work without credentials.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "missing or invalid API token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
