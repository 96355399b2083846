package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const tokenContextKey contextKey = "session_token"

// SessionCookieName is the cookie set at login for browser clients.
const SessionCookieName = "session_token"

// SessionToken extracts the session token from the Authorization header (Bearer) or the
// session cookie and stores it in the request context. It never rejects a request:
// resolving and authorizing the token is the gateway's job.
func SessionToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if t := extractToken(r); t != "" {
			r = r.WithContext(context.WithValue(r.Context(), tokenContextKey, t))
		}
		next.ServeHTTP(w, r)
	})
}

func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// TokenFromContext returns the token stored by SessionToken, or "" for anonymous requests.
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenContextKey).(string)
	return t
}
