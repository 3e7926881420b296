package token

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SecretSize is the refresh-token secret length (256 bits)
	SecretSize = 32

	saltSize         = 16
	iterations       = 10000
	algorithmName    = "SHA256"
	segmentDelimiter = ":"
)

// GenerateSecret returns a fresh high-entropy refresh-token secret
func GenerateSecret() ([]byte, error) {
	secret := make([]byte, SecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}
	return secret, nil
}

// ComputeDigest derives a salted PBKDF2 digest of the secret and encodes it as
// a self-describing descriptor: HEXHASH:HEXSALT:ITERATIONS:ALGORITHM. The salt
// is random per call, so two digests of the same secret never match.
func ComputeDigest(secret []byte) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	derived := pbkdf2.Key(secret, salt, iterations, SecretSize, sha256.New)

	return strings.Join([]string{
		strings.ToUpper(hex.EncodeToString(derived)),
		strings.ToUpper(hex.EncodeToString(salt)),
		strconv.Itoa(iterations),
		algorithmName,
	}, segmentDelimiter), nil
}

// VerifyDigest recomputes the digest of candidate using the parameters embedded
// in the stored descriptor and compares in constant time. Descriptors produced
// with historical iteration counts or hash algorithms still verify, so stored
// tokens survive parameter upgrades. A malformed descriptor never verifies.
func VerifyDigest(candidate []byte, descriptor string) bool {
	segments := strings.Split(descriptor, segmentDelimiter)
	if len(segments) != 4 {
		return false
	}

	storedHash, err := hex.DecodeString(segments[0])
	if err != nil || len(storedHash) == 0 {
		return false
	}
	salt, err := hex.DecodeString(segments[1])
	if err != nil {
		return false
	}
	iter, err := strconv.Atoi(segments[2])
	if err != nil || iter <= 0 {
		return false
	}
	newHash := hashConstructor(segments[3])
	if newHash == nil {
		return false
	}

	derived := pbkdf2.Key(candidate, salt, iter, len(storedHash), newHash)
	return subtle.ConstantTimeCompare(derived, storedHash) == 1
}

// hashConstructor maps a descriptor algorithm name to its hash constructor.
// SHA1 is kept for verification of legacy descriptors only.
func hashConstructor(name string) func() hash.Hash {
	switch strings.ToUpper(name) {
	case "SHA256":
		return sha256.New
	case "SHA512":
		return sha512.New
	case "SHA1":
		return sha1.New
	default:
		return nil
	}
}
