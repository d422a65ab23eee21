package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/me/bloodlens/internal/auth"
	"github.com/me/bloodlens/internal/store"
	"github.com/me/bloodlens/internal/validate"
	"github.com/me/bloodlens/pkg/model"
)

type fixture struct {
	mgr   *Manager
	store *store.SQLiteStore
	auth  *auth.LocalProvider
	now   *time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	provider := auth.NewLocalProvider(st, auth.Options{
		Secret:     "test-secret",
		TokenTTL:   7 * 24 * time.Hour,
		BcryptCost: bcrypt.MinCost,
	}, logger).WithClock(clock)
	if _, err := provider.SignUp(context.Background(), "Jane Doe", "jane@example.com", "Secret123"); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	mgr := NewManager(st, provider, 30*time.Minute, logger).WithClock(clock)
	return &fixture{mgr: mgr, store: st, auth: provider, now: &now}
}

func (f *fixture) advance(d time.Duration) { *f.now = f.now.Add(d) }

func (f *fixture) login(t *testing.T) *model.Session {
	t.Helper()
	sess, err := f.mgr.Init(context.Background(), "", "")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := f.mgr.Login(context.Background(), sess, "jane@example.com", "Secret123"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	return sess
}

func TestInit_CreatesAndReloads(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sess, err := f.mgr.Init(ctx, "", "")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !strings.HasPrefix(sess.ID, "sess_") || sess.IsAuthenticated() {
		t.Errorf("new session = %+v", sess)
	}

	f.advance(time.Minute)
	again, err := f.mgr.Init(ctx, sess.ID, "")
	if err != nil {
		t.Fatalf("Init again: %v", err)
	}
	if again.ID != sess.ID {
		t.Errorf("reloaded ID = %s, want %s", again.ID, sess.ID)
	}
	if !again.LastActivity.Equal(*f.now) {
		t.Errorf("last activity = %v, want %v", again.LastActivity, *f.now)
	}

	unknown, err := f.mgr.Init(ctx, "sess_unknown", "")
	if err != nil {
		t.Fatalf("Init unknown: %v", err)
	}
	if unknown.ID == "sess_unknown" {
		t.Error("unknown IDs must not be adopted")
	}
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		wantCode model.ErrorCode
		wantMsg  string
	}{
		{"success", "jane@example.com", "Secret123", "", ""},
		{"missing password", "jane@example.com", "", model.ErrValidation, "Please fill in all required fields"},
		{"wrong password", "jane@example.com", "Wrong1234", model.ErrUnauthorized, "Invalid email or password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			ctx := context.Background()
			sess, _ := f.mgr.Init(ctx, "", "")

			err := f.mgr.Login(ctx, sess, tt.email, tt.password)
			if tt.wantCode != "" {
				if model.CodeOf(err) != tt.wantCode || model.UserMessage(err) != tt.wantMsg {
					t.Errorf("err = %v, want %s %q", err, tt.wantCode, tt.wantMsg)
				}
				if f.mgr.IsAuthenticated(sess) {
					t.Error("session must stay unauthenticated")
				}
				return
			}
			if err != nil {
				t.Fatalf("Login: %v", err)
			}
			stored, _ := f.store.GetSession(ctx, sess.ID)
			if !stored.IsAuthenticated() || stored.User.Email != "jane@example.com" || stored.AuthToken == "" {
				t.Errorf("stored session = %+v", stored)
			}
		})
	}
}

func TestSignup(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess, _ := f.mgr.Init(ctx, "", "")

	err := f.mgr.Signup(ctx, sess, validate.SignupForm{
		Name: "John", Email: "john@example.com", Password: "Secret123", ConfirmPassword: "Secret124",
	})
	if model.UserMessage(err) != "Passwords do not match" {
		t.Errorf("mismatch err = %v", err)
	}

	err = f.mgr.Signup(ctx, sess, validate.SignupForm{
		Name: "Jane", Email: "jane@example.com", Password: "Secret123", ConfirmPassword: "Secret123",
	})
	if model.CodeOf(err) != model.ErrValidation || !strings.Contains(model.UserMessage(err), "already exists") {
		t.Errorf("duplicate err = %v", err)
	}

	err = f.mgr.Signup(ctx, sess, validate.SignupForm{
		Name: "John", Email: "john@example.com", Password: "Secret123", ConfirmPassword: "Secret123",
	})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if !sess.IsAuthenticated() || sess.User.Email != "john@example.com" {
		t.Errorf("session after signup = %+v", sess)
	}
}

func TestInit_TimeoutExpiresAuthenticatedSession(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess := f.login(t)
	token := sess.AuthToken
	sess.Usage = model.Usage{Count: 3, WindowStart: *f.now}
	f.mgr.Save(ctx, sess)

	// Within the timeout the session survives.
	f.advance(30 * time.Minute)
	if _, err := f.mgr.Init(ctx, sess.ID, token); err != nil {
		t.Fatalf("Init at 30m: %v", err)
	}

	f.advance(31 * time.Minute)
	_, err := f.mgr.Init(ctx, sess.ID, token)
	if !errors.Is(err, model.ErrSessionTimedOut) {
		t.Fatalf("err = %v, want ErrSessionTimedOut", err)
	}
	if model.UserMessage(err) != "Session expired. Please login again." {
		t.Errorf("message = %q", model.UserMessage(err))
	}

	stored, _ := f.store.GetSession(ctx, sess.ID)
	if stored.IsAuthenticated() || stored.Usage.Count != 0 || stored.AuthToken != "" {
		t.Errorf("stored session not reset: %+v", stored)
	}

	// The token was revoked, so it cannot sign the session back in.
	again, err := f.mgr.Init(ctx, sess.ID, token)
	if err != nil {
		t.Fatalf("Init after expiry: %v", err)
	}
	if again.IsAuthenticated() {
		t.Error("revoked token restored the session")
	}
}

func TestInit_UnauthenticatedNeverTimesOut(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess, _ := f.mgr.Init(ctx, "", "")

	f.advance(5 * time.Hour)
	if _, err := f.mgr.Init(ctx, sess.ID, ""); err != nil {
		t.Errorf("Init after idle = %v, want nil", err)
	}
}

func TestInit_RestoresFromToken(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, token, err := f.auth.SignIn(ctx, "jane@example.com", "Secret123")
	if err != nil {
		t.Fatal(err)
	}

	// A new browser session with a valid token is signed in.
	sess, err := f.mgr.Init(ctx, "", token)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !sess.IsAuthenticated() || sess.User.Name != "Jane Doe" {
		t.Errorf("session = %+v, want restored", sess)
	}

	// An invalid token leaves it unauthenticated.
	sess, err = f.mgr.Init(ctx, "", "bogus")
	if err != nil {
		t.Fatalf("Init with bad token: %v", err)
	}
	if sess.IsAuthenticated() {
		t.Error("bogus token authenticated the session")
	}
}

func TestInit_RevokedTokenEndsSession(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess := f.login(t)
	sess.Usage = model.Usage{Count: 2, WindowStart: *f.now}
	f.mgr.Save(ctx, sess)

	// Signing out elsewhere revokes the token this session holds.
	if err := f.auth.SignOut(ctx, sess.AuthToken); err != nil {
		t.Fatal(err)
	}

	f.advance(time.Minute)
	_, err := f.mgr.Init(ctx, sess.ID, "")
	if !errors.Is(err, model.ErrSessionTimedOut) {
		t.Fatalf("err = %v, want ErrSessionTimedOut", err)
	}
	stored, _ := f.store.GetSession(ctx, sess.ID)
	if stored.IsAuthenticated() || stored.AuthToken != "" || stored.Usage.Count != 0 {
		t.Errorf("stored session not reset: %+v", stored)
	}
}

func TestInit_ExpiredTokenEndsActiveSession(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess := f.login(t)
	start := *f.now

	// Activity every 20 minutes never hits the idle timeout, but the
	// seven day token still runs out.
	var err error
	for f.now.Sub(start) < 8*24*time.Hour {
		f.advance(20 * time.Minute)
		if _, err = f.mgr.Init(ctx, sess.ID, ""); err != nil {
			break
		}
	}
	if !errors.Is(err, model.ErrSessionTimedOut) {
		t.Fatalf("err = %v, want ErrSessionTimedOut", err)
	}
	if elapsed := f.now.Sub(start); elapsed < 7*24*time.Hour {
		t.Errorf("session ended after %v, before the token expired", elapsed)
	}
	stored, _ := f.store.GetSession(ctx, sess.ID)
	if stored.IsAuthenticated() {
		t.Error("session still authenticated after token expiry")
	}
}

func TestLogout_ClearsEverything(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess := f.login(t)
	token := sess.AuthToken
	if _, err := f.mgr.CreateChatSession(ctx, sess, "First"); err != nil {
		t.Fatal(err)
	}
	sess.Usage = model.Usage{Count: 2, WindowStart: *f.now}

	if err := f.mgr.Logout(ctx, sess); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if sess.IsAuthenticated() || sess.User != nil || sess.CurrentChatID != "" || sess.Usage.Count != 0 {
		t.Errorf("session after logout = %+v", sess)
	}
	if _, err := f.auth.ValidateSessionToken(ctx, token); err == nil {
		t.Error("token still valid after logout")
	}
}

// failingSignOut is a provider whose SignOut always fails.
type failingSignOut struct {
	*auth.LocalProvider
}

func (failingSignOut) SignOut(context.Context, string) error {
	return errors.New("auth service unavailable")
}

func TestLogin_SwitchAccountLogsSignOutFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	if _, err := f.auth.SignUp(ctx, "John Roe", "john@example.com", "Secret123"); err != nil {
		t.Fatal(err)
	}

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))
	mgr := NewManager(f.store, failingSignOut{f.auth}, 30*time.Minute, logger).
		WithClock(func() time.Time { return *f.now })

	sess, _ := mgr.Init(ctx, "", "")
	if err := mgr.Login(ctx, sess, "jane@example.com", "Secret123"); err != nil {
		t.Fatalf("Login jane: %v", err)
	}
	if err := mgr.Login(ctx, sess, "john@example.com", "Secret123"); err != nil {
		t.Fatalf("Login john: %v", err)
	}
	if sess.User.Email != "john@example.com" {
		t.Errorf("user = %s, want john@example.com", sess.User.Email)
	}
	if !strings.Contains(logs.String(), "sign out failed") {
		t.Errorf("sign-out failure not logged: %q", logs.String())
	}
}

func TestChatOperations_RequireAuth(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess, _ := f.mgr.Init(ctx, "", "")

	checks := map[string]error{}
	_, checks["create"] = f.mgr.CreateChatSession(ctx, sess, "")
	_, checks["list"] = f.mgr.ListChatSessions(ctx, sess)
	checks["delete"] = f.mgr.DeleteChatSession(ctx, sess, "chat_1")
	_, checks["select"] = f.mgr.SelectChatSession(ctx, sess, "chat_1")
	_, checks["save"] = f.mgr.SaveChatMessage(ctx, sess, model.RoleUser, "hi")

	for op, err := range checks {
		if model.UserMessage(err) != "User not authenticated" {
			t.Errorf("%s: err = %v, want User not authenticated", op, err)
		}
	}
}

func TestChatOperations(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess := f.login(t)

	first, err := f.mgr.CreateChatSession(ctx, sess, "First")
	if err != nil {
		t.Fatalf("CreateChatSession: %v", err)
	}
	f.advance(time.Second)
	second, _ := f.mgr.CreateChatSession(ctx, sess, "Second")
	if sess.CurrentChatID != second.ID {
		t.Errorf("current = %s, want newest chat", sess.CurrentChatID)
	}

	list, err := f.mgr.ListChatSessions(ctx, sess)
	if err != nil || len(list) != 2 {
		t.Fatalf("ListChatSessions = %v, %v", list, err)
	}

	if _, err := f.mgr.SelectChatSession(ctx, sess, first.ID); err != nil {
		t.Fatalf("SelectChatSession: %v", err)
	}
	if sess.CurrentChatID != first.ID {
		t.Errorf("current = %s, want %s", sess.CurrentChatID, first.ID)
	}

	// Deleting a non-current chat keeps the current reference.
	if err := f.mgr.DeleteChatSession(ctx, sess, second.ID); err != nil {
		t.Fatalf("DeleteChatSession: %v", err)
	}
	if sess.CurrentChatID != first.ID {
		t.Error("current chat cleared by unrelated delete")
	}
	// Deleting the current chat clears it.
	if err := f.mgr.DeleteChatSession(ctx, sess, first.ID); err != nil {
		t.Fatalf("DeleteChatSession: %v", err)
	}
	if sess.CurrentChatID != "" {
		t.Errorf("current = %q, want cleared", sess.CurrentChatID)
	}

	err = f.mgr.DeleteChatSession(ctx, sess, "chat_missing")
	if model.CodeOf(err) != model.ErrNotFound {
		t.Errorf("missing delete code = %s", model.CodeOf(err))
	}
}

func TestSaveChatMessage_CreatesCurrentChat(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sess := f.login(t)

	chatID, err := f.mgr.SaveChatMessage(ctx, sess, model.RoleUser, "Analyzing report for patient: Jane Doe")
	if err != nil {
		t.Fatalf("SaveChatMessage: %v", err)
	}
	if chatID == "" || sess.CurrentChatID != chatID {
		t.Fatalf("chat id = %q, current = %q", chatID, sess.CurrentChatID)
	}
	again, _ := f.mgr.SaveChatMessage(ctx, sess, model.RoleAssistant, "analysis")
	if again != chatID {
		t.Errorf("second message went to %s, want %s", again, chatID)
	}

	cs, err := f.mgr.ChatMessages(ctx, sess, chatID)
	if err != nil || len(cs.Messages) != 2 {
		t.Fatalf("ChatMessages = %+v, %v", cs, err)
	}

	// A dangling current reference gets replaced.
	sess.CurrentChatID = "chat_gone"
	replaced, err := f.mgr.SaveChatMessage(ctx, sess, model.RoleUser, "hello")
	if err != nil || replaced == "chat_gone" {
		t.Errorf("SaveChatMessage with dangling current = %q, %v", replaced, err)
	}
}

func TestLock_SerializesSession(t *testing.T) {
	f := setup(t)
	var (
		wg      sync.WaitGroup
		active  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := f.mgr.Lock("sess_x")
			defer unlock()
			mu.Lock()
			active++
			maxSeen = max(maxSeen, active)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen)
	}
	if len(f.mgr.locks) != 0 {
		t.Errorf("lock table not cleaned up: %d entries", len(f.mgr.locks))
	}
}

func TestCleanup(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	old, _ := f.mgr.Init(ctx, "", "")
	f.advance(8 * 24 * time.Hour)
	fresh, _ := f.mgr.Init(ctx, "", "")

	n, err := f.mgr.Cleanup(ctx, 7*24*time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("Cleanup = %d, %v; want 1", n, err)
	}
	if s, _ := f.store.GetSession(ctx, old.ID); s != nil {
		t.Error("old session not removed")
	}
	if s, _ := f.store.GetSession(ctx, fresh.ID); s == nil {
		t.Error("fresh session removed")
	}
}

func TestCookies(t *testing.T) {
	rec := httptest.NewRecorder()
	sess := model.NewSession("sess_abc", time.Now())
	SetCookie(rec, sess, true)
	SetTokenCookie(rec, "tok", time.Hour, true)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	if got := IDFromRequest(req); got != "sess_abc" {
		t.Errorf("IDFromRequest = %q", got)
	}
	if got := TokenFromRequest(req); got != "tok" {
		t.Errorf("TokenFromRequest = %q", got)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName && (!c.Expires.IsZero() || c.MaxAge != 0) {
			t.Error("session cookie must be a browser-session cookie")
		}
		if !c.HttpOnly || !c.Secure {
			t.Errorf("cookie %s missing flags", c.Name)
		}
	}

	rec = httptest.NewRecorder()
	ClearTokenCookie(rec)
	if c := rec.Result().Cookies()[0]; c.MaxAge >= 0 {
		t.Errorf("cleared cookie MaxAge = %d", c.MaxAge)
	}
	if got := IDFromRequest(httptest.NewRequest(http.MethodGet, "/", nil)); got != "" {
		t.Errorf("IDFromRequest without cookie = %q", got)
	}
}
