// Package storage keeps an optional audit trail of pipeline outcomes.
//
// Drivers:
//   - file: append-only JSON Lines
//   - sqlite: a single SQLite database file (modernc.org/sqlite, no cgo)
package storage
