package session

import (
	"context"
	"errors"

	"github.com/me/bloodlens/internal/auth"
	"github.com/me/bloodlens/pkg/model"
)

func requireUser(sess *model.Session) (*model.User, error) {
	if sess == nil || !sess.IsAuthenticated() {
		return nil, model.ErrNotAuthenticated
	}
	return sess.User, nil
}

func chatError(msg string, err error) error {
	if errors.Is(err, auth.ErrChatNotFound) {
		return &model.APIError{Code: model.ErrNotFound, Message: "Chat session not found", Cause: err}
	}
	return model.NewUpstreamError(msg, err)
}

// CreateChatSession creates a chat for the signed-in user and makes it current.
func (m *Manager) CreateChatSession(ctx context.Context, sess *model.Session, title string) (*model.ChatSession, error) {
	user, err := requireUser(sess)
	if err != nil {
		return nil, err
	}
	cs, err := m.auth.CreateSession(ctx, user.ID, title)
	if err != nil {
		return nil, chatError("Could not create chat session", err)
	}
	sess.CurrentChatID = cs.ID
	if err := m.Save(ctx, sess); err != nil {
		return nil, err
	}
	return cs, nil
}

// ListChatSessions returns the signed-in user's chats, newest first.
func (m *Manager) ListChatSessions(ctx context.Context, sess *model.Session) ([]*model.ChatSession, error) {
	user, err := requireUser(sess)
	if err != nil {
		return nil, err
	}
	list, err := m.auth.GetUserSessions(ctx, user.ID)
	if err != nil {
		return nil, chatError("Could not load chat sessions", err)
	}
	return list, nil
}

// DeleteChatSession deletes one of the user's chats, clearing the current
// chat reference when it points at the deleted one.
func (m *Manager) DeleteChatSession(ctx context.Context, sess *model.Session, id string) error {
	user, err := requireUser(sess)
	if err != nil {
		return err
	}
	if err := m.auth.DeleteSession(ctx, user.ID, id); err != nil {
		return chatError("Could not delete chat session", err)
	}
	if sess.CurrentChatID == id {
		sess.CurrentChatID = ""
		return m.Save(ctx, sess)
	}
	return nil
}

// SelectChatSession makes one of the user's chats current and returns it with
// its messages.
func (m *Manager) SelectChatSession(ctx context.Context, sess *model.Session, id string) (*model.ChatSession, error) {
	user, err := requireUser(sess)
	if err != nil {
		return nil, err
	}
	cs, err := m.auth.GetSession(ctx, user.ID, id)
	if err != nil {
		return nil, chatError("Could not load chat session", err)
	}
	if sess.CurrentChatID != cs.ID {
		sess.CurrentChatID = cs.ID
		if err := m.Save(ctx, sess); err != nil {
			return nil, err
		}
	}
	return cs, nil
}

// ChatMessages returns a chat of the user with its messages.
func (m *Manager) ChatMessages(ctx context.Context, sess *model.Session, id string) (*model.ChatSession, error) {
	user, err := requireUser(sess)
	if err != nil {
		return nil, err
	}
	cs, err := m.auth.GetSession(ctx, user.ID, id)
	if err != nil {
		return nil, chatError("Could not load chat session", err)
	}
	return cs, nil
}

// SaveChatMessage appends a message to the current chat, creating one first
// if there is none (or the current one no longer exists). It returns the chat ID.
func (m *Manager) SaveChatMessage(ctx context.Context, sess *model.Session, role, content string) (string, error) {
	user, err := requireUser(sess)
	if err != nil {
		return "", err
	}

	chatID := sess.CurrentChatID
	if chatID != "" {
		if _, err := m.auth.GetSession(ctx, user.ID, chatID); err != nil {
			if !errors.Is(err, auth.ErrChatNotFound) {
				return "", chatError("Could not load chat session", err)
			}
			chatID = ""
		}
	}
	if chatID == "" {
		cs, err := m.CreateChatSession(ctx, sess, "")
		if err != nil {
			return "", err
		}
		chatID = cs.ID
	}

	if _, err := m.auth.SaveChatMessage(ctx, chatID, role, content); err != nil {
		return "", chatError("Could not save chat message", err)
	}
	return chatID, nil
}
