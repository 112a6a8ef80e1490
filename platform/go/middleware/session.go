package middleware

import (
	"context"
	"net/http"
	"time"
)

// SessionCookieName is the only channel through which the core accepts a
// session token.
const SessionCookieName = "steeple_session"

type ctxKeyToken struct{}

// SetSessionCookie writes the opaque session token as an HttpOnly cookie.
func SetSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
	})
}

// ClearSessionCookie expires the session cookie on the client.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// WithSessionToken stores the raw token on the context.
func WithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ctxKeyToken{}, token)
}

// SessionTokenFromContext retrieves the raw token from context, if present.
func SessionTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(ctxKeyToken{}).(string)
	return token, ok && token != ""
}

// SessionToken extracts the session cookie (when present) and stores its
// value on the request context. It performs no validation; guards resolve
// and authorize per request downstream.
func SessionToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err == nil && cookie.Value != "" {
			r = r.WithContext(WithSessionToken(r.Context(), cookie.Value))
		}
		next.ServeHTTP(w, r)
	})
}
