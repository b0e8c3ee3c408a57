package device

import "errors"

// Sentinel errors for device operations.
var (
	ErrSwitchNotFound     = errors.New("switch not found")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrInvalidName        = errors.New("invalid name")
	ErrInvalidStatus      = errors.New("invalid status")
)
