package ui

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/me/bloodlens/internal/session"
	"github.com/me/bloodlens/pkg/model"
)

// Context keys for session data.
type contextKey string

const (
	sessionContextKey contextKey = "session"
)

// SessionFromContext retrieves the session from the request context.
func SessionFromContext(ctx context.Context) *model.Session {
	sess, _ := ctx.Value(sessionContextKey).(*model.Session)
	return sess
}

// SessionMiddleware loads (or creates) the browser session and adds it to the
// request context. Requests of the same session are handled one at a time.
// An expired session is sent back to the login page.
func (ui *UI) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := session.IDFromRequest(r)
		token := session.TokenFromRequest(r)
		if id != "" {
			unlock := ui.sessions.Lock(id)
			defer unlock()
		}

		sess, err := ui.sessions.Init(r.Context(), id, token)
		if errors.Is(err, model.ErrSessionTimedOut) {
			session.ClearTokenCookie(w)
			ui.logger.Info("session expired", "session_id", id)
			ui.redirect(w, r, "/login?error="+url.QueryEscape(model.UserMessage(err)))
			return
		}
		if err != nil {
			ui.renderError(w, "Failed to load session", err)
			return
		}

		session.SetCookie(w, sess, ui.secure)
		if token != "" && !sess.IsAuthenticated() {
			session.ClearTokenCookie(w)
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthMiddleware redirects to the login page unless the session is signed in.
// Must be used after SessionMiddleware.
func (ui *UI) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ui.sessions.IsAuthenticated(SessionFromContext(r.Context())) {
			ui.redirect(w, r, "/login")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// redirect sends a 303, or an HX-Redirect header for HTMX requests so the
// whole page navigates instead of swapping a fragment.
func (ui *UI) redirect(w http.ResponseWriter, r *http.Request, target string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
