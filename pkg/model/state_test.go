package model

import "testing"

func TestSessionState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from  SessionState
		to    SessionState
		valid bool
	}{
		{SessionStateUnauthenticated, SessionStateAuthenticated, true},
		{SessionStateAuthenticated, SessionStateUnauthenticated, true},
		{SessionStateAuthenticated, SessionStateAuthenticated, false},
		{SessionStateUnauthenticated, SessionStateUnauthenticated, false},
		{SessionState(""), SessionStateAuthenticated, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
			t.Errorf("SessionState(%q).CanTransitionTo(%q) = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}
