package token

import (
	"errors"
	"time"
)

// ErrRotationConflict is returned when a rotation lost the optimistic version
// check: a concurrent request already rotated the same record.
var ErrRotationConflict = errors.New("refresh token was rotated concurrently")

// RefreshToken is one renewable, revocable session credential. A user holds at
// most one record per active browser/device session; rotation mutates the
// record in place instead of appending rows.
type RefreshToken struct {
	ID        int64
	UserID    string
	Digest    string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time

	// Version guards rotation against concurrent refresh requests. Every
	// persisted rotation increments it; an update conditioned on a stale
	// version affects zero rows.
	Version int64
}

// Revoked reports whether the token was explicitly shut down
func (t *RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// Expired reports whether the token's expiry has passed
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Active reports whether the token can still be exchanged: not revoked and not
// expired
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.Revoked() && !t.Expired(now)
}

// Mint creates a refresh token for the user with a fresh secret and a forward
// expiry window. The plaintext secret is returned exactly once; only its digest
// is kept on the record. The record is not yet persisted and has no ID.
func Mint(userID string, ttl time.Duration, now time.Time) (secret []byte, rec *RefreshToken, err error) {
	secret, err = GenerateSecret()
	if err != nil {
		return nil, nil, err
	}
	digest, err := ComputeDigest(secret)
	if err != nil {
		return nil, nil, err
	}
	rec = &RefreshToken{
		UserID:    userID,
		Digest:    digest,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Version:   1,
	}
	return secret, rec, nil
}

// Rotate replaces the record's secret and renews its expiry in place. The
// record identity and owner are unchanged; the old secret no longer verifies.
// The caller must persist the mutation through an update conditioned on the
// record's previous version.
func Rotate(rec *RefreshToken, ttl time.Duration, now time.Time) (secret []byte, err error) {
	secret, err = GenerateSecret()
	if err != nil {
		return nil, err
	}
	digest, err := ComputeDigest(secret)
	if err != nil {
		return nil, err
	}
	rec.Digest = digest
	rec.ExpiresAt = now.Add(ttl)
	return secret, nil
}

// FindBySecret scans the user's token collection for the first non-revoked
// record whose digest verifies against the candidate secret. Expired records
// are still returned so the caller can distinguish "session expired" from a
// plain mismatch; check Active on the result. The set is small (one record per
// concurrent session), so a linear scan with a PBKDF2 derivation per record is
// acceptable.
func FindBySecret(tokens []*RefreshToken, candidate []byte) *RefreshToken {
	for _, t := range tokens {
		if t.Revoked() {
			continue
		}
		if VerifyDigest(candidate, t.Digest) {
			return t
		}
	}
	return nil
}
