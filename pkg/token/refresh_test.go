package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshToken_States(t *testing.T) {
	now := time.Now()
	revoked := now.Add(-time.Minute)

	tests := []struct {
		name    string
		tok     RefreshToken
		active  bool
		expired bool
	}{
		{
			name:   "fresh token is active",
			tok:    RefreshToken{ExpiresAt: now.Add(time.Hour)},
			active: true,
		},
		{
			name:    "past expiry is not active",
			tok:     RefreshToken{ExpiresAt: now.Add(-time.Second)},
			expired: true,
		},
		{
			name:    "expiry boundary counts as expired",
			tok:     RefreshToken{ExpiresAt: now},
			expired: true,
		},
		{
			name: "revoked but unexpired is not active",
			tok:  RefreshToken{ExpiresAt: now.Add(time.Hour), RevokedAt: &revoked},
		},
		{
			name:    "revoked and expired",
			tok:     RefreshToken{ExpiresAt: now.Add(-time.Hour), RevokedAt: &revoked},
			expired: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.active, tt.tok.Active(now))
			assert.Equal(t, tt.expired, tt.tok.Expired(now))
		})
	}
}

func TestMint(t *testing.T) {
	now := time.Now()
	secret, rec, err := Mint("user-1", 7*24*time.Hour, now)
	require.NoError(t, err)

	assert.Len(t, secret, SecretSize)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, now, rec.CreatedAt)
	assert.Equal(t, now.Add(7*24*time.Hour), rec.ExpiresAt)
	assert.Equal(t, int64(1), rec.Version)
	assert.True(t, rec.Active(now))

	// only the digest is on the record, and it verifies the returned secret
	assert.True(t, VerifyDigest(secret, rec.Digest))
}

func TestRotate(t *testing.T) {
	now := time.Now()
	oldSecret, rec, err := Mint("user-1", time.Hour, now)
	require.NoError(t, err)
	rec.ID = 42

	later := now.Add(30 * time.Minute)
	newSecret, err := Rotate(rec, time.Hour, later)
	require.NoError(t, err)

	// same record, same owner, renewed expiry
	assert.Equal(t, int64(42), rec.ID)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, later.Add(time.Hour), rec.ExpiresAt)

	// the old secret no longer verifies, the new one does
	assert.False(t, VerifyDigest(oldSecret, rec.Digest))
	assert.True(t, VerifyDigest(newSecret, rec.Digest))
	assert.NotEqual(t, oldSecret, newSecret)
}

func TestFindBySecret(t *testing.T) {
	now := time.Now()

	secretA, recA, err := Mint("user-1", time.Hour, now)
	require.NoError(t, err)
	secretB, recB, err := Mint("user-1", time.Hour, now)
	require.NoError(t, err)

	tokens := []*RefreshToken{recA, recB}

	t.Run("finds the matching record among siblings", func(t *testing.T) {
		assert.Same(t, recA, FindBySecret(tokens, secretA))
		assert.Same(t, recB, FindBySecret(tokens, secretB))
	})

	t.Run("unknown secret finds nothing", func(t *testing.T) {
		unknown, err := GenerateSecret()
		require.NoError(t, err)
		assert.Nil(t, FindBySecret(tokens, unknown))
	})

	t.Run("revoked records are never returned", func(t *testing.T) {
		revoked := now
		recA.RevokedAt = &revoked
		assert.Nil(t, FindBySecret(tokens, secretA))
	})

	t.Run("expired records are still found", func(t *testing.T) {
		// the orchestrator distinguishes expired-at-use from mismatch
		recB.ExpiresAt = now.Add(-time.Minute)
		got := FindBySecret(tokens, secretB)
		require.Same(t, recB, got)
		assert.False(t, got.Active(now))
	})
}
