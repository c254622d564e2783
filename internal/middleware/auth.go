package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"commerce-sync/pkg/apierror"
)

// AdminKeyHeader carries the admin key on requests that trigger passes.
const AdminKeyHeader = "X-Admin-Key"

// NewAdminAuth returns a middleware that admits only requests carrying key,
// either in X-Admin-Key or as a bearer token. An empty key rejects every request.
func NewAdminAuth(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				apierror.ServiceUnavailable("ADMIN_API_KEY is not configured").Write(w)
				return
			}

			provided := r.Header.Get(AdminKeyHeader)
			if provided == "" {
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(auth, "Bearer ") {
					provided = strings.TrimPrefix(auth, "Bearer ")
				}
			}

			if provided == "" {
				apierror.Unauthorized("Authentication required. Use X-Admin-Key header.").Write(w)
				return
			}

			if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				apierror.Unauthorized("Invalid admin key").Write(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
