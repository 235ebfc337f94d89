// Package store provides SQLite-backed durable storage for evaluation traces.
//
// The store implements an append-only log with:
//   - Subscriptions: one row per traced Collect of a record stream
//   - Emissions: every record delivered to a subscription
//
// # Ordering
//
// All ordering uses seq INTEGER (the engine's logical clock), never
// timestamps. Every read orders by seq ASC with a binary id tiebreak, so two
// reads of the same log return identical results.
//
// # Idempotency
//
// Subscription ids and emission ids are unique; rewriting either is a no-op
// (ON CONFLICT DO NOTHING). Emission ids are content addressed via
// ir.EmissionID.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Records are stored as RFC 8785 canonical JSON (ir.MarshalCanonical) next
// to their ir.RecordHash. The invalid sentinel is stored with invalid = 1.
package store
