package middleware

import (
	"crypto/subtle"
	"net/http"
)

// AuthTokenHeader carries the shared API secret.
const AuthTokenHeader = "X-Auth-Token"

// Auth requires the shared token on every request. Browsers cannot set
// headers on websocket upgrades, so a "token" query parameter is accepted
// as well. An empty token disables the check.
func Auth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(AuthTokenHeader)
			if got == "" {
				got = r.URL.Query().Get("token")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
