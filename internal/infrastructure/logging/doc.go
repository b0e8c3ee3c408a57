// Package logging provides structured logging for iotpro.
//
// It wraps log/slog with level filtering, configurable output format,
// and default service/version attributes on every record.
package logging
