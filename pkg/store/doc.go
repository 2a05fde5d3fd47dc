// Package store persists measurement samples in a local SQLite database
// (modernc.org/sqlite, no cgo). It provides an append-only log with
// time-range queries and age-based hard deletion.
//
// Missing metrics are stored as NULL and a CHECK constraint mirrors
// types.Sample.Validate, so the table can never hold a row with both or
// neither of (metric set, error message). The database runs in WAL mode with
// a busy timeout so the reporter can read while a collector run writes.
package store
