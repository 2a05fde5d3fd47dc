// Package types defines shared Go types used by both the collector and the
// reporter. Sample is the canonical in-memory representation of one
// measurement attempt, independent of the SQLite row layout in pkg/store.
//
// A Sample is either "ok" (full metric set, no error message) or "error"
// (error message, no metrics). Validate enforces that exactly one of the two
// is populated; pkg/store refuses to persist a Sample that fails it.
package types
