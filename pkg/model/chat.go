package model

import "time"

// Chat message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatSession groups the messages of one conversation of a user.
type ChatSession struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Title     string        `json:"title"`
	Messages  []ChatMessage `json:"messages,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// ChatMessage is a single message in a ChatSession.
type ChatMessage struct {
	ID            string    `json:"id"`
	ChatSessionID string    `json:"chat_session_id"`
	Role          string    `json:"role"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
}

// IsValidRole reports whether role is a known chat message role.
func IsValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}
