package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/bloodlens/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

type scanner interface {
	Scan(dest ...any) error
}

// --- Users ---

func (s *SQLiteStore) CreateUser(ctx context.Context, u *model.User) error {
	s.logger.Debug("sql", "op", "insert", "table", "users", "id", u.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("user %s: %w", u.Email, ErrDuplicate)
	}
	return err
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	s.logger.Debug("sql", "op", "select", "table", "users", "id", id)
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, created_at FROM users WHERE id = ?`, id))
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	s.logger.Debug("sql", "op", "select_by_email", "table", "users")
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, created_at FROM users WHERE email = ?`, email))
}

func (s *SQLiteStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func scanUser(row scanner) (*model.User, error) {
	var u model.User
	var createdAt string
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &u, nil
}

// --- Revoked tokens ---

func (s *SQLiteStore) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	s.logger.Debug("sql", "op", "insert", "table", "revoked_tokens", "jti", jti)

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO revoked_tokens (jti, expires_at) VALUES (?, ?)`,
		jti, expiresAt.Unix())
	return err
}

func (s *SQLiteStore) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM revoked_tokens WHERE jti = ?`, jti).Scan(&n)
	return n > 0, err
}

func (s *SQLiteStore) DeleteExpiredRevocations(ctx context.Context, now time.Time) (int64, error) {
	s.logger.Debug("sql", "op", "delete_expired", "table", "revoked_tokens")

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE expires_at < ?`, now.Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// --- Browser sessions ---

// SaveSession inserts or replaces the session row.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *model.Session) error {
	s.logger.Debug("sql", "op", "upsert", "table", "sessions", "id", sess.ID)

	var userID, email, name string
	if sess.User != nil {
		userID, email, name = sess.User.ID, sess.User.Email, sess.User.Name
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, state, user_id, user_email, user_name, auth_token,
		    last_activity, analysis_count, window_start, current_chat_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		    state=excluded.state, user_id=excluded.user_id, user_email=excluded.user_email,
		    user_name=excluded.user_name, auth_token=excluded.auth_token,
		    last_activity=excluded.last_activity, analysis_count=excluded.analysis_count,
		    window_start=excluded.window_start, current_chat_id=excluded.current_chat_id`,
		sess.ID, string(sess.State), userID, email, name, sess.AuthToken,
		unixNano(sess.LastActivity), sess.Usage.Count, unixNano(sess.Usage.WindowStart),
		sess.CurrentChatID, unixNano(sess.CreatedAt),
	)
	return err
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	s.logger.Debug("sql", "op", "select", "table", "sessions", "id", id)

	var sess model.Session
	var state, userID, email, name string
	var lastActivity, windowStart, createdAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, state, user_id, user_email, user_name, auth_token,
		        last_activity, analysis_count, window_start, current_chat_id, created_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &state, &userID, &email, &name, &sess.AuthToken,
		&lastActivity, &sess.Usage.Count, &windowStart, &sess.CurrentChatID, &createdAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sess.State = model.SessionState(state)
	if userID != "" {
		sess.User = &model.User{ID: userID, Email: email, Name: name}
	}
	sess.LastActivity = fromUnixNano(lastActivity)
	sess.Usage.WindowStart = fromUnixNano(windowStart)
	sess.CreatedAt = fromUnixNano(createdAt)
	return &sess, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	s.logger.Debug("sql", "op", "delete", "table", "sessions", "id", id)

	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// DeleteIdleSessions removes sessions whose last activity is before the cutoff.
func (s *SQLiteStore) DeleteIdleSessions(ctx context.Context, before time.Time) (int64, error) {
	s.logger.Debug("sql", "op", "delete_idle", "table", "sessions")

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE last_activity < ?`, before.UnixNano())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// --- Chat sessions ---

func (s *SQLiteStore) CreateChatSession(ctx context.Context, cs *model.ChatSession) error {
	s.logger.Debug("sql", "op", "insert", "table", "chat_sessions", "id", cs.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, user_id, title, created_at) VALUES (?, ?, ?, ?)`,
		cs.ID, cs.UserID, cs.Title, cs.CreatedAt.Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) GetChatSession(ctx context.Context, id string) (*model.ChatSession, error) {
	s.logger.Debug("sql", "op", "select", "table", "chat_sessions", "id", id)

	var cs model.ChatSession
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at FROM chat_sessions WHERE id = ?`, id,
	).Scan(&cs.ID, &cs.UserID, &cs.Title, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cs.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &cs, nil
}

// ListChatSessions returns the user's chat sessions, newest first.
func (s *SQLiteStore) ListChatSessions(ctx context.Context, userID string) ([]*model.ChatSession, error) {
	s.logger.Debug("sql", "op", "list", "table", "chat_sessions", "user_id", userID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, created_at FROM chat_sessions
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*model.ChatSession
	for rows.Next() {
		var cs model.ChatSession
		var createdAt string
		if err := rows.Scan(&cs.ID, &cs.UserID, &cs.Title, &createdAt); err != nil {
			return nil, err
		}
		cs.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		sessions = append(sessions, &cs)
	}
	return sessions, rows.Err()
}

// DeleteChatSession deletes a chat session owned by userID and its messages.
func (s *SQLiteStore) DeleteChatSession(ctx context.Context, userID, id string) error {
	s.logger.Debug("sql", "op", "delete", "table", "chat_sessions", "id", id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM chat_sessions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("chat session %s: %w", id, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chat_messages WHERE chat_session_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) AddChatMessage(ctx context.Context, msg *model.ChatMessage) error {
	s.logger.Debug("sql", "op", "insert", "table", "chat_messages", "id", msg.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, chat_session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ChatSessionID, msg.Role, msg.Content, msg.CreatedAt.Format(time.RFC3339Nano))
	return err
}

// ListChatMessages returns the messages of a chat session in insertion order.
func (s *SQLiteStore) ListChatMessages(ctx context.Context, chatSessionID string) ([]model.ChatMessage, error) {
	s.logger.Debug("sql", "op", "list", "table", "chat_messages", "chat_session_id", chatSessionID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_session_id, role, content, created_at FROM chat_messages
		 WHERE chat_session_id = ? ORDER BY created_at ASC, rowid ASC`, chatSessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ChatSessionID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// --- Reports ---

func (s *SQLiteStore) CreateReport(ctx context.Context, r *model.Report) error {
	s.logger.Debug("sql", "op", "insert", "table", "reports", "id", r.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (id, user_id, chat_session_id, patient_name, age, gender,
		    report_date, analysis_type, analysis, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.ChatSessionID, r.PatientName, r.Age, r.Gender,
		r.ReportDate, r.AnalysisType, r.Analysis, r.CreatedAt.Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*model.Report, error) {
	s.logger.Debug("sql", "op", "select", "table", "reports", "id", id)

	r, err := scanReport(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, chat_session_id, patient_name, age, gender,
		        report_date, analysis_type, analysis, created_at
		 FROM reports WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// ListReports returns a page of the user's reports, newest first, and the total count.
func (s *SQLiteStore) ListReports(ctx context.Context, userID string, opts model.ListOptions) ([]*model.Report, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "reports", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reports WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, chat_session_id, patient_name, age, gender,
		        report_date, analysis_type, analysis, created_at
		 FROM reports WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		userID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var reports []*model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		reports = append(reports, r)
	}
	return reports, total, rows.Err()
}

func scanReport(row scanner) (*model.Report, error) {
	var r model.Report
	var createdAt string
	if err := row.Scan(&r.ID, &r.UserID, &r.ChatSessionID, &r.PatientName, &r.Age, &r.Gender,
		&r.ReportDate, &r.AnalysisType, &r.Analysis, &createdAt); err != nil {
		return nil, err
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &r, nil
}
