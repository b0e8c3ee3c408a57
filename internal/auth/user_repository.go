package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserRepository defines the interface for credential persistence.
// The store is a row store keyed by normalized email.
//
// The two check-then-write sequences in the auth flows are expressed as
// single atomic statements: Create relies on the UNIQUE(email)
// constraint instead of a prior existence check, and ResetCredentials
// is a conditional update that only matches when the stored recovery
// digest equals the presented one.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	ResetCredentials(ctx context.Context, email, currentRecoveryDigest string, creds Credentials) error
	Delete(ctx context.Context, email string) error
	Count(ctx context.Context) (int, error)
}

// Credentials is the replacement credential set written by a successful
// password recovery: both digests are recomputed under a fresh salt.
type Credentials struct {
	PasswordDigest string
	RecoveryDigest string
	Salt           string
}

// SQLiteUserRepository implements UserRepository using SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new SQLite-backed user repository.
func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

// Create inserts a new user row. The ID is generated if empty.
// Returns ErrEmailExists when the email is already registered; the
// UNIQUE constraint makes this safe under concurrent signups.
func (r *SQLiteUserRepository) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = "usr-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	user.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	user.UpdatedAt = user.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, phone, gender, password_digest, recovery_digest, salt, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, nullString(user.Phone), nullString(user.Gender),
		user.PasswordDigest, user.RecoveryDigest, user.Salt, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("creating user: %w", err)
	}

	return nil
}

// GetByEmail retrieves a user by normalized email.
func (r *SQLiteUserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, phone, gender, password_digest, recovery_digest, salt, created_at, updated_at
		 FROM users WHERE email = ?`, email)

	var u User
	var phone, gender sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&u.ID, &u.Email, &u.Name, &phone, &gender,
		&u.PasswordDigest, &u.RecoveryDigest, &u.Salt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	if phone.Valid {
		u.Phone = phone.String
	}
	if gender.Valid {
		u.Gender = gender.String
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &u, nil
}

// ResetCredentials replaces a user's password digest, recovery digest,
// and salt in a single conditional update. The update only matches when
// the stored recovery digest equals currentRecoveryDigest, so
// verify-then-update is atomic: a stale or wrong code affects zero rows
// and returns ErrInvalidRecoveryCode.
func (r *SQLiteUserRepository) ResetCredentials(ctx context.Context, email, currentRecoveryDigest string, creds Credentials) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_digest = ?, recovery_digest = ?, salt = ?, updated_at = ?
		 WHERE email = ? AND recovery_digest = ?`,
		creds.PasswordDigest, creds.RecoveryDigest, creds.Salt, now,
		email, currentRecoveryDigest,
	)
	if err != nil {
		return fmt.Errorf("resetting credentials: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrInvalidRecoveryCode
	}
	return nil
}

// Delete removes a user row by normalized email. Rows in the switches
// and connections tables cascade with the user.
func (r *SQLiteUserRepository) Delete(ctx context.Context, email string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE email = ?", email)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Count returns the total number of registered users.
func (r *SQLiteUserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "unique constraint"))
}
