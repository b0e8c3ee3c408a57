package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// saltBytes is the length of the per-user random salt.
const saltBytes = 16

// Digest returns the SHA-256 digest of the input as lowercase hex
// (64 characters). Deterministic; changing the algorithm invalidates
// every stored credential, so there is no migration path by design.
func Digest(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}

// SaltedDigest digests secret||salt. One uniform policy for both
// password and recovery-code storage: the salt is per-user, random,
// and stored alongside the digests.
func SaltedDigest(secret, salt string) string {
	return Digest([]byte(secret + salt))
}

// NewSalt generates a random per-user salt, hex encoded.
func NewSalt() (string, error) {
	b := make([]byte, saltBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// DigestEqual compares two hex digests in constant time.
// Timing-safe comparison for credential checks.
func DigestEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
