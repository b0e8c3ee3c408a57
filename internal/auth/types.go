package auth

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// emailPattern is a pragmatic format check, not full RFC 5322 validation.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// minPasswordLength is the minimum accepted password length.
const minPasswordLength = 8

// NormalizeEmail trims whitespace and lowercases an email address.
// Emails are always stored and looked up in normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail checks if a normalized email meets format requirements.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// User represents a registered account.
//
// Digest and salt fields are never serialised; handlers can encode a
// User directly as the sanitized response body.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone,omitempty"`
	Gender         string    `json:"gender,omitempty"`
	PasswordDigest string    `json:"-"`
	RecoveryDigest string    `json:"-"`
	Salt           string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Sentinel errors for auth operations. The API layer maps these to
// HTTP statuses; messages for credential failures stay generic.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRecoveryCode = errors.New("invalid recovery code")
	ErrUserNotFound        = errors.New("user not found")
	ErrEmailExists         = errors.New("email already registered")
	ErrTokenInvalid        = errors.New("invalid token")
	ErrValidation          = errors.New("validation failed")
)
