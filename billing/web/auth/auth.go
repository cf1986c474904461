// Package auth extracts the acting user from requests. The surrounding
// application authenticates sessions upstream and forwards the resolved
// identity in the X-User-ID header; this package only parses and requires
// it.
package auth

import (
	"context"
	"net/http"
	"strconv"
)

type contextKey int

const userIDKey contextKey = iota

// UserHeader carries the upstream-authenticated user identity.
const UserHeader = "X-User-ID"

// ParseUser stores the X-User-ID header value, when present and valid, in
// the request context.
func ParseUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get(UserHeader); raw != "" {
			if id, err := strconv.ParseUint(raw, 10, 64); err == nil && id > 0 {
				r = r.WithContext(context.WithValue(r.Context(), userIDKey, uint(id)))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUser rejects requests that carry no valid user identity.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserIDFromContext(r.Context()); !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserIDFromContext returns the acting user's ID, if one was parsed.
func UserIDFromContext(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(userIDKey).(uint)
	return id, ok
}
