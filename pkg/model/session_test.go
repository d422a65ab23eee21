package model

import (
	"errors"
	"testing"
	"time"
)

func TestSession_AuthenticateAndReset(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	sess := NewSession("sess_1", now)
	if sess.IsAuthenticated() {
		t.Fatal("new session should be unauthenticated")
	}

	user := &User{ID: "user_1", Email: "jane@example.com", Name: "Jane", PasswordHash: "secret-hash"}
	if err := sess.Authenticate(user, "tok", now.Add(time.Minute)); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !sess.IsAuthenticated() {
		t.Fatal("expected authenticated session")
	}
	if sess.User.PasswordHash != "" {
		t.Error("session must not keep the password hash")
	}
	if sess.AuthToken != "tok" {
		t.Errorf("AuthToken = %q, want tok", sess.AuthToken)
	}

	sess.Usage = Usage{Count: 3, WindowStart: now}
	sess.CurrentChatID = "chat_1"
	sess.Reset(now.Add(2 * time.Minute))

	if sess.IsAuthenticated() || sess.User != nil || sess.AuthToken != "" {
		t.Error("Reset should clear authentication")
	}
	if sess.Usage.Count != 0 || !sess.Usage.WindowStart.IsZero() {
		t.Errorf("Reset should clear usage, got %+v", sess.Usage)
	}
	if sess.CurrentChatID != "" {
		t.Error("Reset should clear the current chat")
	}
	if sess.ID != "sess_1" || !sess.CreatedAt.Equal(now) {
		t.Error("Reset should keep the session identity")
	}
}

func TestSession_AuthenticateTwice(t *testing.T) {
	now := time.Now()
	sess := NewSession("sess_2", now)
	user := &User{ID: "user_1", Email: "a@b.com"}
	if err := sess.Authenticate(user, "t1", now); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	err := sess.Authenticate(user, "t2", now)
	var transErr *InvalidTransitionError
	if !errors.As(err, &transErr) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if sess.AuthToken != "t1" {
		t.Error("failed transition must not change the token")
	}
}

func TestSession_AuthenticateNilUser(t *testing.T) {
	sess := NewSession("sess_3", time.Now())
	if err := sess.Authenticate(nil, "tok", time.Now()); err == nil {
		t.Fatal("expected error for nil user")
	}
	if sess.IsAuthenticated() {
		t.Error("session must stay unauthenticated")
	}
}

func TestSession_IdleFor(t *testing.T) {
	now := time.Now()
	sess := NewSession("sess_4", now.Add(-31*time.Minute))
	if got := sess.IdleFor(now); got != 31*time.Minute {
		t.Errorf("IdleFor = %v, want 31m", got)
	}
	sess.Touch(now)
	if got := sess.IdleFor(now); got != 0 {
		t.Errorf("IdleFor after Touch = %v, want 0", got)
	}
}

func TestUser_DisplayName(t *testing.T) {
	if got := (&User{Email: "a@b.com"}).DisplayName(); got != "a@b.com" {
		t.Errorf("DisplayName = %q, want email fallback", got)
	}
	if got := (&User{Email: "a@b.com", Name: "Ann"}).DisplayName(); got != "Ann" {
		t.Errorf("DisplayName = %q, want Ann", got)
	}
}
