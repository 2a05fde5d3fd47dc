package api

import (
	"crypto/subtle"
	"net/http"
)

// RequireAPIKey wraps next with API key authentication.
//
// Behaviour:
//   - If mode != "apikey", all requests pass through.
//   - Otherwise the request must carry key in header; a missing or wrong
//     key gets 401 with a JSON error body. An empty key rejects everything.
func RequireAPIKey(mode, header, key string, next http.Handler) http.Handler {
	if mode != "apikey" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(header)
		if key == "" || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			jsonErr(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
