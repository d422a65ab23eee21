package model

// SessionState represents the authentication state of a browser Session.
type SessionState string

const (
	SessionStateUnauthenticated SessionState = "unauthenticated"
	SessionStateAuthenticated   SessionState = "authenticated"
)

// String returns the string representation of the session state.
func (s SessionState) String() string {
	return string(s)
}

// ValidSessionTransitions defines the allowed state transitions for Sessions.
// Expiry is not a state of its own: an expired session is reset to unauthenticated.
var ValidSessionTransitions = map[SessionState][]SessionState{
	SessionStateUnauthenticated: {SessionStateAuthenticated},
	SessionStateAuthenticated:   {SessionStateUnauthenticated},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s SessionState) CanTransitionTo(next SessionState) bool {
	for _, allowed := range ValidSessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
