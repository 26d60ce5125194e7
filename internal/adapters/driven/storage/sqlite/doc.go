// Package sqlite stores the vectors of one build workspace in a SQLite file.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
// One table holds every vector, keyed by vector_id. A repeated vector id is
// refused, never overwritten.
//
// # Thread Safety
//
// All operations are thread-safe. The database runs in WAL mode.
package sqlite
