package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SwitchRepository defines the interface for switch persistence.
// Switches are keyed by (user_id, name); Set is an upsert so the API
// can create and toggle with the same call.
type SwitchRepository interface {
	List(ctx context.Context, userID string) ([]Switch, error)
	Get(ctx context.Context, userID, name string) (*Switch, error)
	Set(ctx context.Context, userID, name string, on bool) (*Switch, error)
	Delete(ctx context.Context, userID, name string) error
}

// SQLiteSwitchRepository implements SwitchRepository using SQLite.
type SQLiteSwitchRepository struct {
	db *sql.DB
}

// NewSwitchRepository creates a new SQLite-backed switch repository.
func NewSwitchRepository(db *sql.DB) *SQLiteSwitchRepository {
	return &SQLiteSwitchRepository{db: db}
}

// List retrieves all of a user's switches ordered by name.
func (r *SQLiteSwitchRepository) List(ctx context.Context, userID string) ([]Switch, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, name, is_on, updated_at
		 FROM switches WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing switches: %w", err)
	}
	defer rows.Close()

	switches := []Switch{}
	for rows.Next() {
		sw, err := scanSwitch(rows)
		if err != nil {
			return nil, err
		}
		switches = append(switches, *sw)
	}
	return switches, rows.Err()
}

// Get retrieves a single switch by user and name.
func (r *SQLiteSwitchRepository) Get(ctx context.Context, userID, name string) (*Switch, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT user_id, name, is_on, updated_at
		 FROM switches WHERE user_id = ? AND name = ?`, userID, name)

	sw, err := scanSwitch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSwitchNotFound
		}
		return nil, err
	}
	return sw, nil
}

// Set creates or updates a switch in one statement and returns the
// resulting row.
func (r *SQLiteSwitchRepository) Set(ctx context.Context, userID, name string, on bool) (*Switch, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO switches (user_id, name, is_on, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, name) DO UPDATE SET is_on = excluded.is_on, updated_at = excluded.updated_at`,
		userID, name, boolToInt(on), now,
	)
	if err != nil {
		return nil, fmt.Errorf("setting switch: %w", err)
	}

	return r.Get(ctx, userID, name)
}

// Delete removes a switch. Returns ErrSwitchNotFound when no row matches.
func (r *SQLiteSwitchRepository) Delete(ctx context.Context, userID, name string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM switches WHERE user_id = ? AND name = ?", userID, name)
	if err != nil {
		return fmt.Errorf("deleting switch: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrSwitchNotFound
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanSwitch(row scanner) (*Switch, error) {
	var sw Switch
	var isOn int
	var updatedAt string

	if err := row.Scan(&sw.UserID, &sw.Name, &isOn, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("scanning switch: %w", err)
	}

	sw.On = isOn != 0
	sw.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &sw, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
