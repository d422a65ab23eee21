package model

import "time"

// Usage tracks analyses performed inside the current rate-limit window.
type Usage struct {
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
}

// Session is the state of one browser session: who is signed in, when they were
// last active, how many analyses they ran, and which chat is current.
type Session struct {
	ID            string       `json:"id"`
	State         SessionState `json:"state"`
	User          *User        `json:"user,omitempty"`
	AuthToken     string       `json:"-"` // Auth service token (not exposed via JSON)
	LastActivity  time.Time    `json:"last_activity"`
	Usage         Usage        `json:"usage"`
	CurrentChatID string       `json:"current_chat_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// NewSession returns an unauthenticated session.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:           id,
		State:        SessionStateUnauthenticated,
		LastActivity: now,
		CreatedAt:    now,
	}
}

// IsAuthenticated reports whether a user is signed in on this session.
func (s *Session) IsAuthenticated() bool {
	return s.State == SessionStateAuthenticated && s.User != nil
}

// IdleFor returns how long the session has been inactive at now.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivity)
}

// Touch records activity at now.
func (s *Session) Touch(now time.Time) {
	s.LastActivity = now
}

// Authenticate moves the session to the authenticated state for user.
func (s *Session) Authenticate(user *User, token string, now time.Time) error {
	if user == nil {
		return &InvalidTransitionError{Entity: "Session", ID: s.ID, From: s.State.String(), To: "authenticated (no user)"}
	}
	if !s.State.CanTransitionTo(SessionStateAuthenticated) {
		return &InvalidTransitionError{Entity: "Session", ID: s.ID, From: s.State.String(), To: SessionStateAuthenticated.String()}
	}
	s.State = SessionStateAuthenticated
	s.User = user.Public()
	s.AuthToken = token
	s.LastActivity = now
	return nil
}

// Reset clears all session state except its identity, leaving it unauthenticated.
// Used for logout, timeout and failed token validation.
func (s *Session) Reset(now time.Time) {
	s.State = SessionStateUnauthenticated
	s.User = nil
	s.AuthToken = ""
	s.Usage = Usage{}
	s.CurrentChatID = ""
	s.LastActivity = now
}
