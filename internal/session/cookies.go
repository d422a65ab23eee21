package session

import (
	"net/http"
	"time"

	"github.com/me/bloodlens/pkg/model"
)

const (
	// CookieName holds the session ID. It has no expiry, so closing the
	// browser ends the session.
	CookieName = "bl_session"
	// TokenCookieName holds the auth token used to sign a new session back in.
	TokenCookieName = "bl_token"
)

// IDFromRequest returns the session ID cookie value, or "".
func IDFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// TokenFromRequest returns the auth token cookie value, or "".
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(TokenCookieName); err == nil {
		return c.Value
	}
	return ""
}

// SetCookie sets the session cookie on the response.
func SetCookie(w http.ResponseWriter, sess *model.Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SetTokenCookie stores the auth token until it expires.
func SetTokenCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

// ClearTokenCookie removes the auth token cookie.
func ClearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
