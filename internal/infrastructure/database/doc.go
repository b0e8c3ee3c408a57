// Package database provides the SQLite connection and schema migrations
// for iotpro.
//
// The connection is configured for a single writer with WAL mode and a
// busy timeout. Migrations are embedded .sql files applied in version
// order, each in its own transaction, tracked in schema_migrations.
package database
