package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/me/bloodlens/internal/store"
	"github.com/me/bloodlens/pkg/model"
)

// Options configures a LocalProvider.
type Options struct {
	Secret     string        // HMAC key for tokens; random per process when empty
	Issuer     string        // iss claim
	TokenTTL   time.Duration // token lifetime
	BcryptCost int           // defaults to bcrypt.DefaultCost
}

// LocalProvider implements Provider on the local store with bcrypt password
// hashes and HS256 JWTs. Signing out revokes the token's jti.
type LocalProvider struct {
	store  store.Store
	secret []byte
	issuer string
	ttl    time.Duration
	cost   int
	now    func() time.Time
	logger *slog.Logger
}

// NewLocalProvider creates a LocalProvider.
func NewLocalProvider(st store.Store, opts Options, logger *slog.Logger) *LocalProvider {
	logger = logger.With("component", "auth")
	secret := []byte(opts.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		rand.Read(secret)
		logger.Warn("no token secret configured, using a random one; sessions will not survive a restart")
	}
	if opts.Issuer == "" {
		opts.Issuer = "bloodlens"
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 7 * 24 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &LocalProvider{
		store:  st,
		secret: secret,
		issuer: opts.Issuer,
		ttl:    opts.TokenTTL,
		cost:   opts.BcryptCost,
		now:    time.Now,
		logger: logger,
	}
}

// WithClock replaces the time source.
func (p *LocalProvider) WithClock(now func() time.Time) *LocalProvider {
	p.now = now
	return p
}

// SignUp creates an account. Input validation is the caller's job.
func (p *LocalProvider) SignUp(ctx context.Context, name, email, password string) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{
		ID:           "usr_" + uuid.New().String(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
		CreatedAt:    p.now().UTC(),
	}
	if err := p.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	p.logger.Info("user signed up", "user_id", u.ID)
	return u.Public(), nil
}

// SignIn checks the credentials and issues a token.
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*model.User, string, error) {
	u, err := p.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, "", fmt.Errorf("lookup user: %w", err)
	}
	if u == nil {
		return nil, "", ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := p.issue(u.ID)
	if err != nil {
		return nil, "", err
	}
	p.logger.Info("user signed in", "user_id", u.ID)
	return u.Public(), token, nil
}

func (p *LocalProvider) issue(userID string) (string, error) {
	now := p.now()
	claims := jwt.RegisteredClaims{
		ID:        newJTI(),
		Subject:   userID,
		Issuer:    p.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func newJTI() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func (p *LocalProvider) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return p.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ValidateSessionToken returns the user a live, unrevoked token belongs to.
func (p *LocalProvider) ValidateSessionToken(ctx context.Context, token string) (*model.User, error) {
	claims, err := p.parse(token)
	if err != nil {
		p.logger.Debug("token rejected", "error", err)
		return nil, ErrInvalidToken
	}
	revoked, err := p.store.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	u, err := p.store.GetUser(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil {
		return nil, ErrInvalidToken
	}
	return u.Public(), nil
}

// SignOut revokes token. Invalid or expired tokens are already unusable and
// are ignored.
func (p *LocalProvider) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := p.parse(token)
	if err != nil {
		return nil
	}
	if err := p.store.RevokeToken(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	p.logger.Info("user signed out", "user_id", claims.Subject)
	return nil
}

// PurgeRevocations drops revocations of tokens that have expired anyway.
func (p *LocalProvider) PurgeRevocations(ctx context.Context) (int64, error) {
	return p.store.DeleteExpiredRevocations(ctx, p.now())
}

// CreateSession creates a chat session. An empty title gets a timestamped default.
func (p *LocalProvider) CreateSession(ctx context.Context, userID, title string) (*model.ChatSession, error) {
	now := p.now().UTC()
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Chat " + now.Format("2006-01-02 15:04")
	}
	cs := &model.ChatSession{
		ID:        "chat_" + uuid.New().String(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
	}
	if err := p.store.CreateChatSession(ctx, cs); err != nil {
		return nil, fmt.Errorf("create chat session: %w", err)
	}
	return cs, nil
}

// GetSession returns the user's chat session with its messages.
func (p *LocalProvider) GetSession(ctx context.Context, userID, id string) (*model.ChatSession, error) {
	cs, err := p.store.GetChatSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get chat session: %w", err)
	}
	if cs == nil || cs.UserID != userID {
		return nil, ErrChatNotFound
	}
	if cs.Messages, err = p.store.ListChatMessages(ctx, id); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return cs, nil
}

func (p *LocalProvider) GetUserSessions(ctx context.Context, userID string) ([]*model.ChatSession, error) {
	return p.store.ListChatSessions(ctx, userID)
}

func (p *LocalProvider) DeleteSession(ctx context.Context, userID, id string) error {
	if err := p.store.DeleteChatSession(ctx, userID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrChatNotFound
		}
		return err
	}
	return nil
}

func (p *LocalProvider) SaveChatMessage(ctx context.Context, chatSessionID, role, content string) (*model.ChatMessage, error) {
	if !model.IsValidRole(role) {
		return nil, fmt.Errorf("invalid message role %q", role)
	}
	msg := &model.ChatMessage{
		ID:            "msg_" + uuid.New().String(),
		ChatSessionID: chatSessionID,
		Role:          role,
		Content:       content,
		CreatedAt:     p.now().UTC(),
	}
	if err := p.store.AddChatMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}
	return msg, nil
}

func (p *LocalProvider) GetMessages(ctx context.Context, chatSessionID string) ([]model.ChatMessage, error) {
	return p.store.ListChatMessages(ctx, chatSessionID)
}
