package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/router"
)

// authMiddleware guards the completion and admin routes with a single
// shared bearer token. The comparison is constant time so the token
// cannot be probed byte by byte. Failures answer with the same JSON
// error envelope the rest of the gateway uses.
func authMiddleware(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(presented), want) != 1 {
				writeJSON(w, http.StatusUnauthorized, router.ErrorEnvelope{
					Error: router.ErrorBody{Type: "unauthorized", Message: "missing or invalid bearer token"},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
