// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements multiple store interfaces
// through a single database connection pool:
//
//   - VectorStore: Collections, embedded chunks and cosine similarity queries
//   - ProgressStore: Per-repository stage progress and run ownership
//   - UsageStore: The ledger behind the monthly stage limit
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each .up.sql file records its own version.
//
// # Data Location
//
// By default, the database is stored at ~/.repolens/repolens.db
//
// # Thread Safety
//
// All operations are thread-safe. Transactions take the write lock when they
// begin, so BeginStage checks and claims a stage atomically across processes.
package sqlite
