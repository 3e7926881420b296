package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gatherly/identity/pkg/token"
)

// Dialect abstracts the driver-specific corners of the SQL store: placeholder
// style, schema DDL, generated-key retrieval and unique-violation detection.
type Dialect interface {
	// Name returns the database/sql driver name
	Name() string
	// Rebind converts ? placeholders into the dialect's native style
	Rebind(query string) string
	// Schema returns the DDL statements creating the store's tables
	Schema() []string
	// UseReturning reports whether inserts should fetch generated keys with
	// a RETURNING clause rather than LastInsertId
	UseReturning() bool
	// TranslateUniqueViolation maps a driver error on the users table to
	// ErrDuplicateUserName or ErrDuplicateEmail, or returns nil when the
	// error is not a uniqueness conflict.
	TranslateUniqueViolation(err error) error
}

// SQLStore implements Store on top of database/sql with a pluggable Dialect.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps an open connection pool. The caller owns the pool's
// lifecycle; the store never closes it.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// DB exposes the underlying pool for health checks
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// EnsureSchema creates the store's tables when they do not exist yet
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

const userColumns = "id, user_name, normalized_user_name, email, normalized_email, display_name, bio, image_url, password_hash, created_at"

func (s *SQLStore) CreateUser(ctx context.Context, user *User) error {
	user.NormalizedUserName = Normalize(user.UserName)
	user.NormalizedEmail = Normalize(user.Email)

	query := s.dialect.Rebind(`INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.UserName, user.NormalizedUserName,
		user.Email, user.NormalizedEmail,
		user.DisplayName, user.Bio, user.ImageURL,
		user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		if dup := s.dialect.TranslateUniqueViolation(err); dup != nil {
			return dup
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (s *SQLStore) UserByEmail(ctx context.Context, email string) (*User, error) {
	query := s.dialect.Rebind(`SELECT ` + userColumns + ` FROM users WHERE normalized_email = ?`)
	return s.scanUser(s.db.QueryRowContext(ctx, query, Normalize(email)))
}

func (s *SQLStore) UserByID(ctx context.Context, id string) (*User, error) {
	query := s.dialect.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

func (s *SQLStore) UserNameTaken(ctx context.Context, userName string) (bool, error) {
	return s.exists(ctx, `SELECT COUNT(1) FROM users WHERE normalized_user_name = ?`, Normalize(userName))
}

func (s *SQLStore) EmailTaken(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, `SELECT COUNT(1) FROM users WHERE normalized_email = ?`, Normalize(email))
}

func (s *SQLStore) exists(ctx context.Context, query, arg string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.dialect.Rebind(query), arg).Scan(&n); err != nil {
		return false, fmt.Errorf("checking existence: %w", err)
	}
	return n > 0, nil
}

func (s *SQLStore) UpdateProfile(ctx context.Context, userID, displayName, bio string) error {
	query := s.dialect.Rebind(`UPDATE users SET display_name = ?, bio = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, displayName, bio, userID)
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	if affected == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

func (s *SQLStore) scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.UserName, &u.NormalizedUserName,
		&u.Email, &u.NormalizedEmail,
		&u.DisplayName, &u.Bio, &u.ImageURL,
		&u.PasswordHash, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &u, nil
}

func (s *SQLStore) InsertRefreshToken(ctx context.Context, t *token.RefreshToken) error {
	const insert = `INSERT INTO refresh_tokens (user_id, digest, created_at, expires_at, revoked_at, version) VALUES (?, ?, ?, ?, ?, ?)`

	var revokedAt sql.NullTime
	if t.RevokedAt != nil {
		revokedAt = sql.NullTime{Time: *t.RevokedAt, Valid: true}
	}

	if s.dialect.UseReturning() {
		query := s.dialect.Rebind(insert + ` RETURNING id`)
		err := s.db.QueryRowContext(ctx, query,
			t.UserID, t.Digest, t.CreatedAt, t.ExpiresAt, revokedAt, t.Version,
		).Scan(&t.ID)
		if err != nil {
			return fmt.Errorf("inserting refresh token: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(insert),
		t.UserID, t.Digest, t.CreatedAt, t.ExpiresAt, revokedAt, t.Version,
	)
	if err != nil {
		return fmt.Errorf("inserting refresh token: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("inserting refresh token: %w", err)
	}
	t.ID = id
	return nil
}

func (s *SQLStore) RefreshTokensByUser(ctx context.Context, userID string) ([]*token.RefreshToken, error) {
	query := s.dialect.Rebind(`SELECT id, user_id, digest, created_at, expires_at, revoked_at, version
		FROM refresh_tokens WHERE user_id = ? ORDER BY created_at DESC, id DESC`)
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("loading refresh tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*token.RefreshToken
	for rows.Next() {
		var t token.RefreshToken
		var revokedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.UserID, &t.Digest, &t.CreatedAt, &t.ExpiresAt, &revokedAt, &t.Version); err != nil {
			return nil, fmt.Errorf("scanning refresh token: %w", err)
		}
		if revokedAt.Valid {
			at := revokedAt.Time
			t.RevokedAt = &at
		}
		tokens = append(tokens, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading refresh tokens: %w", err)
	}
	return tokens, nil
}

func (s *SQLStore) RotateRefreshToken(ctx context.Context, t *token.RefreshToken) error {
	query := s.dialect.Rebind(`UPDATE refresh_tokens SET digest = ?, expires_at = ?, version = version + 1
		WHERE id = ? AND version = ?`)
	res, err := s.db.ExecContext(ctx, query, t.Digest, t.ExpiresAt, t.ID, t.Version)
	if err != nil {
		return fmt.Errorf("rotating refresh token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rotating refresh token: %w", err)
	}
	if affected == 0 {
		return token.ErrRotationConflict
	}
	t.Version++
	return nil
}

func (s *SQLStore) RevokeRefreshToken(ctx context.Context, id int64, revokedAt time.Time) error {
	query := s.dialect.Rebind(`UPDATE refresh_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`)
	if _, err := s.db.ExecContext(ctx, query, revokedAt, id); err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}
	return nil
}

func (s *SQLStore) PurgeExpiredRefreshTokens(ctx context.Context, userID string, now time.Time) (int64, error) {
	query := s.dialect.Rebind(`DELETE FROM refresh_tokens WHERE user_id = ? AND expires_at <= ?`)
	res, err := s.db.ExecContext(ctx, query, userID, now)
	if err != nil {
		return 0, fmt.Errorf("purging refresh tokens: %w", err)
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purging refresh tokens: %w", err)
	}
	return purged, nil
}

// rebindPositional rewrites ? placeholders as $1..$n for drivers that use
// numbered parameters.
func rebindPositional(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
