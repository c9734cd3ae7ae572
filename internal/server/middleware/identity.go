package middleware

import (
	"context"
	"net/http"
	"strings"
)

// userIDHeader carries the acting user's identity. User management and
// sessions live in an upstream gateway; this engine trusts the header the
// gateway injects after authenticating the client.
const userIDHeader = "X-User-ID"

type contextKey string

const userIDKey contextKey = "user_id"

// Identity returns middleware that copies the X-User-ID header into the
// request context. Requests without the header pass through; handlers that
// require an identity reject them with 401.
func Identity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if uid := strings.TrimSpace(r.Header.Get(userIDHeader)); uid != "" {
				r = r.WithContext(context.WithValue(r.Context(), userIDKey, uid))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserID returns the acting user's ID from the request context, or "" when
// the request carried no identity.
func UserID(ctx context.Context) string {
	uid, _ := ctx.Value(userIDKey).(string)
	return uid
}
