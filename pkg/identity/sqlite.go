package identity

import (
	"errors"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// sqliteDialect targets SQLite via mattn/go-sqlite3, used for local
// development and the store's test suite.
type sqliteDialect struct{}

// SQLiteDialect returns the Dialect for a go-sqlite3 connection
func SQLiteDialect() Dialect {
	return sqliteDialect{}
}

func (sqliteDialect) Name() string { return "sqlite3" }

func (sqliteDialect) Rebind(query string) string { return query }

func (sqliteDialect) UseReturning() bool { return false }

func (sqliteDialect) TranslateUniqueViolation(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return nil
	}
	switch {
	case strings.Contains(sqliteErr.Error(), "users.normalized_user_name"):
		return ErrDuplicateUserName
	case strings.Contains(sqliteErr.Error(), "users.normalized_email"):
		return ErrDuplicateEmail
	}
	return nil
}

func (sqliteDialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			user_name TEXT NOT NULL,
			normalized_user_name TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL,
			normalized_email TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL DEFAULT '',
			bio TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS refresh_tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
			digest TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			revoked_at TIMESTAMP,
			version INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS refresh_tokens_user_id_idx ON refresh_tokens (user_id)`,
	}
}
