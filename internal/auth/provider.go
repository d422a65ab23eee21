// Package auth is the authentication and chat-history service used by the
// session manager.
package auth

import (
	"context"
	"errors"

	"github.com/me/bloodlens/pkg/model"
)

// Errors returned by providers. Their text is shown to users.
var (
	ErrInvalidCredentials = errors.New("Invalid email or password")
	ErrEmailTaken         = errors.New("An account with this email already exists")
	ErrInvalidToken       = errors.New("Invalid or expired session token")
	ErrChatNotFound       = errors.New("Chat session not found")
)

// Provider authenticates users and stores their chat sessions.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*model.User, string, error)
	SignUp(ctx context.Context, name, email, password string) (*model.User, error)
	SignOut(ctx context.Context, token string) error
	ValidateSessionToken(ctx context.Context, token string) (*model.User, error)

	CreateSession(ctx context.Context, userID, title string) (*model.ChatSession, error)
	GetSession(ctx context.Context, userID, id string) (*model.ChatSession, error)
	GetUserSessions(ctx context.Context, userID string) ([]*model.ChatSession, error)
	DeleteSession(ctx context.Context, userID, id string) error
	SaveChatMessage(ctx context.Context, chatSessionID, role, content string) (*model.ChatMessage, error)
	GetMessages(ctx context.Context, chatSessionID string) ([]model.ChatMessage, error)
}
