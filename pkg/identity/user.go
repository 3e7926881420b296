package identity

import (
	"strings"
	"time"
)

// User represents an authenticated principal
type User struct {
	ID                 string
	UserName           string
	NormalizedUserName string
	Email              string
	NormalizedEmail    string
	DisplayName        string
	Bio                string
	ImageURL           string

	// PasswordHash is empty for federated-only accounts
	PasswordHash string

	CreatedAt time.Time
}

// HasPassword reports whether the account carries a local password credential
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// Normalize canonicalizes a user name or email for uniqueness and lookup.
// Uppercase-invariant comparison, applied at every lookup site. Changing this
// function invalidates the normalized columns, so don't.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
