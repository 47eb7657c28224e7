// Package storage keeps the tracked-mod catalog: which workshop items are
// watched, which chat hears about them, and the last update time seen.
//
// Drivers:
//   - "file": a single JSON document rewritten atomically
//   - "sqlite": modernc.org/sqlite (pure Go)
//   - "postgres": lib/pq, for a shared or hosted database
package storage
