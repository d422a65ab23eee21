// Package session manages browser sessions: authentication state, idle
// timeout, the analysis quota counters, and the current chat.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/me/bloodlens/internal/auth"
	"github.com/me/bloodlens/internal/store"
	"github.com/me/bloodlens/internal/validate"
	"github.com/me/bloodlens/pkg/model"
)

// DefaultTimeout is the idle time after which an authenticated session expires.
const DefaultTimeout = 30 * time.Minute

// Manager owns the lifecycle of browser sessions.
type Manager struct {
	store   store.Store
	auth    auth.Provider
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager creates a Manager. A non-positive timeout uses DefaultTimeout.
func NewManager(st store.Store, provider auth.Provider, timeout time.Duration, logger *slog.Logger) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{
		store:   st,
		auth:    provider,
		timeout: timeout,
		now:     time.Now,
		logger:  logger.With("component", "session"),
		locks:   make(map[string]*sessionLock),
	}
}

// WithClock replaces the time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Timeout returns the idle timeout.
func (m *Manager) Timeout() time.Duration {
	return m.timeout
}

// Init loads the session with the given ID, creating a fresh unauthenticated
// one when the ID is empty or unknown. An unauthenticated session presenting a
// previously issued auth token is signed in again if the token is still valid.
//
// An authenticated session idle for longer than the timeout, or whose auth
// token no longer validates, is reset and saved, and Init returns
// model.ErrSessionTimedOut. Every successful call records activity.
func (m *Manager) Init(ctx context.Context, sessionID, token string) (*model.Session, error) {
	now := m.now()

	var sess *model.Session
	if sessionID != "" {
		var err error
		if sess, err = m.store.GetSession(ctx, sessionID); err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
	}

	if sess == nil {
		id, err := generateSessionID()
		if err != nil {
			return nil, fmt.Errorf("generate session id: %w", err)
		}
		sess = model.NewSession(id, now)
		m.logger.Debug("session created", "session_id", sess.ID)
	} else if sess.IsAuthenticated() && sess.IdleFor(now) > m.timeout {
		m.logger.Info("session expired", "session_id", sess.ID, "user_id", sess.User.ID, "idle", sess.IdleFor(now))
		if err := m.auth.SignOut(ctx, sess.AuthToken); err != nil {
			m.logger.Warn("sign out on expiry failed", "session_id", sess.ID, "error", err)
		}
		sess.Reset(now)
		if err := m.Save(ctx, sess); err != nil {
			return nil, err
		}
		return nil, model.ErrSessionTimedOut
	} else if sess.IsAuthenticated() {
		if _, err := m.auth.ValidateSessionToken(ctx, sess.AuthToken); err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				return nil, model.NewUpstreamError("Could not verify your session. Please try again.", err)
			}
			m.logger.Info("session token rejected", "session_id", sess.ID, "user_id", sess.User.ID)
			sess.Reset(now)
			if err := m.Save(ctx, sess); err != nil {
				return nil, err
			}
			return nil, model.ErrSessionTimedOut
		}
	}

	if !sess.IsAuthenticated() && token != "" {
		m.restore(ctx, sess, token, now)
	}

	sess.Touch(now)
	if err := m.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (m *Manager) restore(ctx context.Context, sess *model.Session, token string, now time.Time) {
	user, err := m.auth.ValidateSessionToken(ctx, token)
	if err != nil {
		m.logger.Debug("token restore failed", "session_id", sess.ID, "error", err)
		return
	}
	if err := sess.Authenticate(user, token, now); err != nil {
		m.logger.Warn("token restore rejected", "session_id", sess.ID, "error", err)
		return
	}
	m.logger.Info("session restored from token", "session_id", sess.ID, "user_id", user.ID)
}

// Login signs the session in with email and password.
func (m *Manager) Login(ctx context.Context, sess *model.Session, email, password string) error {
	if err := validate.Required(email, password); err != nil {
		return err
	}

	user, token, err := m.auth.SignIn(ctx, email, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return model.NewUnauthorizedError(err.Error())
		}
		return model.NewUpstreamError("Login failed. Please try again.", err)
	}

	now := m.now()
	if sess.IsAuthenticated() {
		// Switching accounts starts from a clean session.
		if err := m.auth.SignOut(ctx, sess.AuthToken); err != nil {
			m.logger.Warn("sign out failed", "session_id", sess.ID, "error", err)
		}
		sess.Reset(now)
	}
	if err := sess.Authenticate(user, token, now); err != nil {
		return err
	}
	return m.Save(ctx, sess)
}

// Signup creates an account and signs the session in with it.
func (m *Manager) Signup(ctx context.Context, sess *model.Session, form validate.SignupForm) error {
	if err := validate.Signup(form); err != nil {
		return err
	}
	if _, err := m.auth.SignUp(ctx, form.Name, form.Email, form.Password); err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			return model.NewValidationError(err.Error())
		}
		return model.NewUpstreamError("Signup failed. Please try again.", err)
	}
	return m.Login(ctx, sess, form.Email, form.Password)
}

// Logout signs out at the auth service and clears all session state. The
// session is reset even if the auth service fails.
func (m *Manager) Logout(ctx context.Context, sess *model.Session) error {
	if sess.AuthToken != "" {
		if err := m.auth.SignOut(ctx, sess.AuthToken); err != nil {
			m.logger.Warn("sign out failed", "session_id", sess.ID, "error", err)
		}
	}
	if sess.User != nil {
		m.logger.Info("user logged out", "session_id", sess.ID, "user_id", sess.User.ID)
	}
	sess.Reset(m.now())
	return m.Save(ctx, sess)
}

// IsAuthenticated reports whether sess has a signed-in user.
func (m *Manager) IsAuthenticated(sess *model.Session) bool {
	return sess != nil && sess.IsAuthenticated()
}

// Save persists sess.
func (m *Manager) Save(ctx context.Context, sess *model.Session) error {
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Lock serializes requests of one session. The returned func unlocks.
func (m *Manager) Lock(sessionID string) func() {
	m.mu.Lock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		m.locks[sessionID] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, sessionID)
		}
		m.mu.Unlock()
	}
}

// Cleanup deletes sessions idle for longer than retention.
func (m *Manager) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := m.store.DeleteIdleSessions(ctx, m.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("delete idle sessions: %w", err)
	}
	if n > 0 {
		m.logger.Info("idle sessions removed", "count", n)
	}
	return n, nil
}

// generateSessionID generates a cryptographically secure random session ID.
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "sess_" + hex.EncodeToString(b), nil
}
