// Package database loads the initial position snapshot and writes
// checkpoints back to it.
//
// Two backends share one table layout:
//   - PostgreSQL via a pgx connection pool
//   - SQLite via the pure-Go modernc driver, for local runs and tests
//
// The table holds one row per position with snake_case columns matching
// the record fields. Saves upsert by id, so the table always holds the
// latest value of each position.
package database
