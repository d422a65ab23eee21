package store

import (
	"context"
	"errors"
	"time"

	"github.com/me/bloodlens/pkg/model"
)

// ErrNotFound is returned by mutations whose target row does not exist.
// Getters return (nil, nil) instead.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique key (such as a user email) is taken.
var ErrDuplicate = errors.New("already exists")

// Store defines the persistence layer for BloodLens entities.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CountUsers(ctx context.Context) (int, error)

	// Revoked auth tokens
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
	DeleteExpiredRevocations(ctx context.Context, now time.Time) (int64, error)

	// Browser sessions
	SaveSession(ctx context.Context, sess *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteIdleSessions(ctx context.Context, before time.Time) (int64, error)

	// Chat sessions and messages
	CreateChatSession(ctx context.Context, cs *model.ChatSession) error
	GetChatSession(ctx context.Context, id string) (*model.ChatSession, error)
	ListChatSessions(ctx context.Context, userID string) ([]*model.ChatSession, error)
	DeleteChatSession(ctx context.Context, userID, id string) error
	AddChatMessage(ctx context.Context, msg *model.ChatMessage) error
	ListChatMessages(ctx context.Context, chatSessionID string) ([]model.ChatMessage, error)

	// Reports
	CreateReport(ctx context.Context, r *model.Report) error
	GetReport(ctx context.Context, id string) (*model.Report, error)
	ListReports(ctx context.Context, userID string, opts model.ListOptions) ([]*model.Report, int, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
