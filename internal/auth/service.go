package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AlienQ7/iotpro/internal/infrastructure/logging"
)

// Service orchestrates the auth operations over the credential store.
// All dependencies are explicit; there is no ambient configuration.
type Service struct {
	users  UserRepository
	secret string
	ttl    time.Duration
	logger *logging.Logger
}

// NewService creates an auth service.
func NewService(users UserRepository, secret string, ttl time.Duration, logger *logging.Logger) *Service {
	return &Service{
		users:  users,
		secret: secret,
		ttl:    ttl,
		logger: logger,
	}
}

// SignupRequest is the validated input for the signup operation.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
	Gender   string `json:"gender,omitempty"`
}

// Validate checks required fields and formats.
func (r *SignupRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	email := NormalizeEmail(r.Email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if !IsValidEmail(email) {
		return fmt.Errorf("%w: email format is invalid", ErrValidation)
	}
	if r.Password == "" {
		return fmt.Errorf("%w: password is required", ErrValidation)
	}
	if len(r.Password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}
	return nil
}

// SignupResult carries the created user and the one-time plaintext
// recovery code. The code is never stored and never shown again.
type SignupResult struct {
	User         *User  `json:"user"`
	RecoveryCode string `json:"recovery_code"`
}

// Signup registers a new account: a fresh salt, the password digest,
// and a recovery-code digest are computed once and inserted. Duplicate
// emails surface as ErrEmailExists via the store's uniqueness guarantee.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*SignupResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	salt, err := NewSalt()
	if err != nil {
		return nil, err
	}
	code, err := GenerateRecoveryCode()
	if err != nil {
		return nil, err
	}

	user := &User{
		Email:          NormalizeEmail(req.Email),
		Name:           req.Name,
		Phone:          req.Phone,
		Gender:         req.Gender,
		PasswordDigest: SaltedDigest(req.Password, salt),
		RecoveryDigest: SaltedDigest(code, salt),
		Salt:           salt,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID)

	return &SignupResult{
		User:         user,
		RecoveryCode: code,
	}, nil
}

// LoginRequest is the validated input for the login operation.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks required fields.
func (r *LoginRequest) Validate() error {
	if NormalizeEmail(r.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if r.Password == "" {
		return fmt.Errorf("%w: password is required", ErrValidation)
	}
	return nil
}

// LoginResult carries the session token and the sanitized user.
type LoginResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// Login verifies credentials and issues a session token.
//
// An unknown email and a wrong password both return
// ErrInvalidCredentials: the caller must not be able to tell which,
// so responses cannot be used to enumerate registered emails.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	email := NormalizeEmail(req.Email)
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !DigestEqual(SaltedDigest(req.Password, user.Salt), user.PasswordDigest) {
		return nil, ErrInvalidCredentials
	}

	token, err := GenerateSessionToken(user, s.secret, s.ttl)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Token: token,
		User:  user,
	}, nil
}

// ForgotLookup acknowledges a recovery request without revealing
// whether the email is registered. The only failure is a missing email.
func (s *Service) ForgotLookup(_ context.Context, email string) error {
	if NormalizeEmail(email) == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	return nil
}

// ResetRequest is the validated input for the recovery-reset operation.
type ResetRequest struct {
	Email        string `json:"email"`
	RecoveryCode string `json:"recovery_code"`
	NewPassword  string `json:"new_password"`
}

// Validate checks required fields.
func (r *ResetRequest) Validate() error {
	if NormalizeEmail(r.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if r.RecoveryCode == "" {
		return fmt.Errorf("%w: recovery_code is required", ErrValidation)
	}
	if r.NewPassword == "" {
		return fmt.Errorf("%w: new_password is required", ErrValidation)
	}
	if len(r.NewPassword) < minPasswordLength {
		return fmt.Errorf("%w: new_password must be at least %d characters", ErrValidation, minPasswordLength)
	}
	return nil
}

// ResetResult carries the replacement one-time recovery code.
type ResetResult struct {
	RecoveryCode string `json:"recovery_code"`
}

// ForgotReset verifies the presented recovery code and, in a single
// conditional write, replaces the password digest, recovery digest,
// and salt. The presented code becomes unusable the moment the update
// lands: a second attempt matches zero rows.
//
// An unknown email returns ErrInvalidRecoveryCode, the same failure as
// a wrong code.
func (s *Service) ForgotReset(ctx context.Context, req ResetRequest) (*ResetResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	email := NormalizeEmail(req.Email)
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidRecoveryCode
		}
		return nil, err
	}

	// Candidate digest under the user's current salt; the conditional
	// update below re-checks it atomically.
	presented := SaltedDigest(req.RecoveryCode, user.Salt)

	newSalt, err := NewSalt()
	if err != nil {
		return nil, err
	}
	newCode, err := GenerateRecoveryCode()
	if err != nil {
		return nil, err
	}

	err = s.users.ResetCredentials(ctx, email, presented, Credentials{
		PasswordDigest: SaltedDigest(req.NewPassword, newSalt),
		RecoveryDigest: SaltedDigest(newCode, newSalt),
		Salt:           newSalt,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("credentials reset", "user_id", user.ID)

	return &ResetResult{RecoveryCode: newCode}, nil
}

// Delete removes an account and, via cascade, all of its switches and
// connection rows. Unlike login, delete reveals existence (404 for an
// unknown email) - an accepted asymmetry.
func (s *Service) Delete(ctx context.Context, email string) error {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}

	if err := s.users.Delete(ctx, normalized); err != nil {
		return err
	}

	s.logger.Info("user deleted", "email", normalized)
	return nil
}

// VerifyToken parses and validates a session token against the
// service's signing secret.
func (s *Service) VerifyToken(token string) (*SessionClaims, error) {
	return ParseSessionToken(token, s.secret)
}
