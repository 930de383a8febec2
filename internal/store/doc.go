// Package store provides SQLite-backed durable storage for the mirror.
//
// The store owns the append-only event log and the current-state
// projections folded from it:
//   - Events: one immutable row per entity/area transition
//   - Entities, Areas: projections, updated in the same transaction as
//     the event that produced them
//   - Memberships: derived cache owned by the index, rebuildable
//   - Report snapshots: per-(area, date) aggregates, past dates immutable
//
// Invariants enforced here:
//   - Revisions are store-assigned: contiguous from 1, no gaps, no
//     duplicates. UNIQUE(subject_kind, subject_id, revision) backs this.
//   - Event insert and projection update commit together or not at all.
//   - History reads are ordered by revision ASC; replaying them
//     reproduces the projection exactly.
//
// Database configuration:
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
