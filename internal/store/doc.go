// Package store provides typed access to the tracked-product collections.
//
// The Store interface is the document-store boundary: jobs never talk to a
// database directly. Three drivers are provided:
//   - "memory": in-process maps (default; also the store used by tests)
//   - "sqlite": single-file database via modernc.org/sqlite
//   - "postgres": pgx connection pool
//
// Per-product updates (ApplyPriceCheck) are atomic within a driver: two
// concurrent probes of the same product can never lose a counter increment
// or a history append. Probes of distinct products need no coordination.
package store
