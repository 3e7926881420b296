package identity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)

	assert.True(t, CheckPassword(hash, "s3cret-pass"))
	assert.False(t, CheckPassword(hash, "wrong"))
	assert.False(t, CheckPassword("", "s3cret-pass"))
}

func TestVerifierVerifyPassword(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	user := &User{
		ID:           uuid.NewString(),
		UserName:     "jake",
		Email:        "jake@example.com",
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.CreateUser(ctx, user))

	// Federated accounts carry no local password and can never pass a
	// password check.
	federated := &User{
		ID:        uuid.NewString(),
		UserName:  "mina",
		Email:     "mina@example.com",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateUser(ctx, federated))

	verifier := NewVerifier(store)

	got, err := verifier.VerifyPassword(ctx, "Jake@Example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = verifier.VerifyPassword(ctx, "jake@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = verifier.VerifyPassword(ctx, "mina@example.com", "anything")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = verifier.VerifyPassword(ctx, "nobody@example.com", "anything")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "JAKE@EXAMPLE.COM", Normalize(" jake@Example.COM  "))
	assert.Equal(t, "", Normalize("   "))
}

func TestUserHasPassword(t *testing.T) {
	assert.False(t, (&User{}).HasPassword())
	assert.True(t, (&User{PasswordHash: "x"}).HasPassword())
}
