package identity

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword derives a salted bcrypt hash of the plaintext password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares the plaintext password with the stored hash in
// constant time
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Verifier validates password credentials against stored user records
type Verifier struct {
	store Store
}

// NewVerifier creates a credential verifier over the store
func NewVerifier(store Store) *Verifier {
	return &Verifier{store: store}
}

// VerifyPassword looks up the user by normalized email and checks the
// password. The failure is uniform: an unknown email, a federated-only
// account, and a wrong password all produce ErrInvalidCredentials.
func (v *Verifier) VerifyPassword(ctx context.Context, email, password string) (*User, error) {
	user, err := v.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.HasPassword() || !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
