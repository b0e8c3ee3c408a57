package auth

import (
	"crypto/rand"
	"fmt"
)

// recoveryCodeLength is the number of characters in a recovery code.
const recoveryCodeLength = 12

// recoveryAlphabet is the 62-character set recovery codes are drawn from.
const recoveryAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateRecoveryCode creates a cryptographically random, human-presentable
// recovery code. Each byte from crypto/rand is mapped into the alphabet by
// modulo reduction; the slight non-uniform bias is accepted.
//
// Only the code's digest is ever persisted - the plaintext is returned to
// the caller exactly once.
func GenerateRecoveryCode() (string, error) {
	b := make([]byte, recoveryCodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating recovery code: %w", err)
	}

	code := make([]byte, recoveryCodeLength)
	for i, v := range b {
		code[i] = recoveryAlphabet[int(v)%len(recoveryAlphabet)]
	}
	return string(code), nil
}
