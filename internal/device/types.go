package device

import (
	"fmt"
	"regexp"
	"time"
)

// namePattern restricts switch names and device IDs to slug form:
// lowercase alphanumerics separated by single hyphens or underscores.
var namePattern = regexp.MustCompile(`^[a-z0-9]+(?:[-_][a-z0-9]+)*$`)

// maxNameLength bounds switch names and device IDs.
const maxNameLength = 64

// Switch is a named boolean toggle owned by a user.
type Switch struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	On        bool      `json:"is_on"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Connection status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Connection is the reachability record for one of a user's devices.
// LastSeenAt is the last moment the device was known online; it is nil
// for devices that have never connected.
type Connection struct {
	UserID     string     `json:"user_id"`
	DeviceID   string     `json:"device_id"`
	Status     string     `json:"status"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ValidateName checks a switch name or device ID.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: name must be a lowercase slug", ErrInvalidName)
	}
	return nil
}

// ValidateStatus checks a connection status value.
func ValidateStatus(status string) error {
	if status != StatusOnline && status != StatusOffline {
		return fmt.Errorf("%w: status must be %q or %q", ErrInvalidStatus, StatusOnline, StatusOffline)
	}
	return nil
}
