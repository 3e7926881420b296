package identity

import (
	"context"
	"time"

	"github.com/gatherly/identity/pkg/token"
)

// Store is the relational store contract consumed by the authentication flows.
// Implementations normalize user names and emails with Normalize before every
// lookup and uniqueness check.
type Store interface {
	// CreateUser inserts a new user record. Returns ErrDuplicateUserName or
	// ErrDuplicateEmail on a uniqueness conflict.
	CreateUser(ctx context.Context, user *User) error

	// UserByEmail finds a user by normalized email, or ErrNotFound
	UserByEmail(ctx context.Context, email string) (*User, error)

	// UserByID finds a user by stable identifier, or ErrNotFound
	UserByID(ctx context.Context, id string) (*User, error)

	// UserNameTaken reports whether the normalized user name is in use
	UserNameTaken(ctx context.Context, userName string) (bool, error)

	// EmailTaken reports whether the normalized email is in use
	EmailTaken(ctx context.Context, email string) (bool, error)

	// UpdateProfile updates display name and bio. ErrNoRowsAffected when the
	// user does not exist.
	UpdateProfile(ctx context.Context, userID, displayName, bio string) error

	// InsertRefreshToken persists a freshly minted token and fills in its ID
	InsertRefreshToken(ctx context.Context, t *token.RefreshToken) error

	// RefreshTokensByUser loads the user's token collection, newest first
	RefreshTokensByUser(ctx context.Context, userID string) ([]*token.RefreshToken, error)

	// RotateRefreshToken persists an in-place rotation as an update-by-key
	// conditioned on the record's version. On success the record's Version is
	// incremented; if a concurrent rotation won, token.ErrRotationConflict is
	// returned and the record is left unchanged in the store.
	RotateRefreshToken(ctx context.Context, t *token.RefreshToken) error

	// RevokeRefreshToken stamps the record's revocation time. The row is kept
	// until purged so the shutdown is auditable.
	RevokeRefreshToken(ctx context.Context, id int64, revokedAt time.Time) error

	// PurgeExpiredRefreshTokens removes every record of the user whose expiry
	// has passed, regardless of revocation state. Returns the number purged.
	PurgeExpiredRefreshTokens(ctx context.Context, userID string, now time.Time) (int64, error)
}
