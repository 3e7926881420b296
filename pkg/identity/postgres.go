package identity

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

// postgresDialect targets PostgreSQL via lib/pq
type postgresDialect struct{}

// PostgresDialect returns the Dialect for a lib/pq connection
func PostgresDialect() Dialect {
	return postgresDialect{}
}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Rebind(query string) string { return rebindPositional(query) }

func (postgresDialect) UseReturning() bool { return true }

func (postgresDialect) TranslateUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return nil
	}
	switch {
	case strings.Contains(pqErr.Constraint, "normalized_user_name"):
		return ErrDuplicateUserName
	case strings.Contains(pqErr.Constraint, "normalized_email"):
		return ErrDuplicateEmail
	}
	return nil
}

func (postgresDialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			user_name TEXT NOT NULL,
			normalized_user_name TEXT NOT NULL,
			email TEXT NOT NULL,
			normalized_email TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			bio TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			CONSTRAINT users_normalized_user_name_key UNIQUE (normalized_user_name),
			CONSTRAINT users_normalized_email_key UNIQUE (normalized_email)
		)`,
		`CREATE TABLE IF NOT EXISTS refresh_tokens (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
			digest TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			revoked_at TIMESTAMPTZ,
			version BIGINT NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS refresh_tokens_user_id_idx ON refresh_tokens (user_id)`,
	}
}
