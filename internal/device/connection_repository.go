package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ConnectionRepository defines the interface for connection-state
// persistence. Upsert is the single write path for both the HTTP API
// and the MQTT presence feed.
type ConnectionRepository interface {
	List(ctx context.Context, userID string) ([]Connection, error)
	Get(ctx context.Context, userID, deviceID string) (*Connection, error)
	Upsert(ctx context.Context, userID, deviceID, status string) (*Connection, error)
	Delete(ctx context.Context, userID, deviceID string) error
}

// SQLiteConnectionRepository implements ConnectionRepository using SQLite.
type SQLiteConnectionRepository struct {
	db *sql.DB
}

// NewConnectionRepository creates a new SQLite-backed connection repository.
func NewConnectionRepository(db *sql.DB) *SQLiteConnectionRepository {
	return &SQLiteConnectionRepository{db: db}
}

// List retrieves all of a user's device connections ordered by device ID.
func (r *SQLiteConnectionRepository) List(ctx context.Context, userID string) ([]Connection, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, device_id, status, last_seen_at, updated_at
		 FROM connections WHERE user_id = ? ORDER BY device_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	defer rows.Close()

	conns := []Connection{}
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *conn)
	}
	return conns, rows.Err()
}

// Get retrieves a single connection by user and device ID.
func (r *SQLiteConnectionRepository) Get(ctx context.Context, userID, deviceID string) (*Connection, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT user_id, device_id, status, last_seen_at, updated_at
		 FROM connections WHERE user_id = ? AND device_id = ?`, userID, deviceID)

	conn, err := scanConnection(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConnectionNotFound
		}
		return nil, err
	}
	return conn, nil
}

// Upsert records a device's connection status. A transition to online
// also stamps last_seen_at; going offline preserves the previous value
// so clients can show when the device was last reachable.
func (r *SQLiteConnectionRepository) Upsert(ctx context.Context, userID, deviceID, status string) (*Connection, error) {
	if err := ValidateName(deviceID); err != nil {
		return nil, err
	}
	if err := ValidateStatus(status); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var lastSeen any
	if status == StatusOnline {
		lastSeen = now
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO connections (user_id, device_id, status, last_seen_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, device_id) DO UPDATE SET
			status = excluded.status,
			last_seen_at = COALESCE(excluded.last_seen_at, connections.last_seen_at),
			updated_at = excluded.updated_at`,
		userID, deviceID, status, lastSeen, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting connection: %w", err)
	}

	return r.Get(ctx, userID, deviceID)
}

// Delete removes a connection row. Returns ErrConnectionNotFound when
// no row matches.
func (r *SQLiteConnectionRepository) Delete(ctx context.Context, userID, deviceID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM connections WHERE user_id = ? AND device_id = ?", userID, deviceID)
	if err != nil {
		return fmt.Errorf("deleting connection: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

func scanConnection(row scanner) (*Connection, error) {
	var conn Connection
	var lastSeen sql.NullString
	var updatedAt string

	if err := row.Scan(&conn.UserID, &conn.DeviceID, &conn.Status, &lastSeen, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("scanning connection: %w", err)
	}

	if lastSeen.Valid {
		t, err := time.Parse(time.RFC3339, lastSeen.String)
		if err == nil {
			conn.LastSeenAt = &t
		}
	}
	conn.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &conn, nil
}
