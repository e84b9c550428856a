package middleware

import (
	"net/http"
	"strings"

	pkgmw "github.com/shirisha-ilura/UL/pkg/middleware"
)

// Identity resolves the caller for every request.
// It checks the X-User-Email header, then the user_email query parameter,
// and falls back to the configured default so single-user deployments work
// with zero setup.
func Identity(defaultEmail string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email := ""

			// Priority 1: X-User-Email header
			if h := r.Header.Get("X-User-Email"); h != "" {
				email = strings.TrimSpace(h)
			}

			// Priority 2: user_email query parameter
			if email == "" {
				if q := r.URL.Query().Get("user_email"); q != "" {
					email = strings.TrimSpace(q)
				}
			}

			// Default identity
			if email == "" {
				email = defaultEmail
			}

			ctx := pkgmw.SetUserEmail(r.Context(), email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
