package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for all BloodLens tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
		name          TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		created_at    TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS revoked_tokens (
		jti        TEXT PRIMARY KEY,
		expires_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_revoked_tokens_expires_at ON revoked_tokens(expires_at)`,

	// Browser sessions. The user columns are a snapshot taken at login.
	`CREATE TABLE IF NOT EXISTS sessions (
		id             TEXT PRIMARY KEY,
		state          TEXT NOT NULL DEFAULT 'unauthenticated',
		user_id        TEXT NOT NULL DEFAULT '',
		user_email     TEXT NOT NULL DEFAULT '',
		user_name      TEXT NOT NULL DEFAULT '',
		auth_token     TEXT NOT NULL DEFAULT '',
		last_activity  INTEGER NOT NULL,
		analysis_count INTEGER NOT NULL DEFAULT 0,
		window_start   INTEGER NOT NULL DEFAULT 0,
		created_at     INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_last_activity ON sessions(last_activity)`,

	`CREATE TABLE IF NOT EXISTS chat_sessions (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		title      TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_sessions_user_id ON chat_sessions(user_id)`,

	`CREATE TABLE IF NOT EXISTS chat_messages (
		id              TEXT PRIMARY KEY,
		chat_session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		created_at      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_chat_session_id ON chat_messages(chat_session_id)`,

	`CREATE TABLE IF NOT EXISTS reports (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL,
		chat_session_id TEXT NOT NULL DEFAULT '',
		patient_name    TEXT NOT NULL,
		age             INTEGER NOT NULL,
		gender          TEXT NOT NULL,
		report_date     TEXT NOT NULL,
		analysis_type   TEXT NOT NULL,
		analysis        TEXT NOT NULL,
		created_at      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reports_user_id ON reports(user_id)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	{
		table:    "sessions",
		column:   "current_chat_id",
		alterSQL: "ALTER TABLE sessions ADD COLUMN current_chat_id TEXT NOT NULL DEFAULT ''",
	},
}

// migrate executes all schema DDL statements and alter migrations.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = db.ExecContext(ctx, alterSQL)
	return err
}
