package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/me/bloodlens/internal/auth"
	"github.com/me/bloodlens/internal/validate"
	"github.com/me/bloodlens/pkg/model"
)

const ctxKeyUser ctxKey = "user"

// UserFromContext returns the user authenticated by apiAuthMiddleware.
func UserFromContext(ctx context.Context) *model.User {
	u, _ := ctx.Value(ctxKeyUser).(*model.User)
	return u
}

// apiAuthMiddleware authenticates API requests by the bearer token issued at
// login. Requests without a valid token get 401.
func apiAuthMiddleware(provider auth.Provider, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := RequestIDFromContext(r.Context())

			token := bearerToken(r)
			if token == "" {
				respondError(w, reqID, http.StatusUnauthorized, model.NewUnauthorizedError("authentication required"))
				return
			}

			user, err := provider.ValidateSessionToken(r.Context(), token)
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidToken) {
					logger.Error("token validation failed", "request_id", reqID, "error", err)
				}
				respondError(w, reqID, http.StatusUnauthorized, model.NewUnauthorizedError("invalid or expired token"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyUser, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// handleLogin exchanges credentials for a bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid JSON body"))
		return
	}
	if err := validate.Required(req.Email, req.Password); err != nil {
		respondErr(w, s.logger, reqID, err)
		return
	}

	user, token, err := s.auth.SignIn(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		respondError(w, reqID, http.StatusUnauthorized, model.NewUnauthorizedError(err.Error()))
		return
	}
	if err != nil {
		respondErr(w, s.logger, reqID, err)
		return
	}

	s.logger.Info("api login", "user_id", user.ID, "request_id", reqID)
	respondOK(w, reqID, loginResponse{Token: token, User: user.Public()})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	respondOK(w, RequestIDFromContext(r.Context()), UserFromContext(r.Context()).Public())
}
