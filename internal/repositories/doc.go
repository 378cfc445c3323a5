// Package repositories implements SQLite persistence for jobs, subscriptions and the dedup index.
//
// Key Implementations:
//   - [JobRepository] : Job records with FIFO sequence numbers and status queries
//   - [SubscriptionRepository] : Saved playlist URLs, unique by URL, with sync bookkeeping
//   - [TrackRecordRepository] : Append-only dedup index rows; the newest row per key wins
//
// Sequence numbers provide stable admission ordering for jobs independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
//
// Lookups that find nothing return errors wrapping [shared.ErrNotFound]; unique constraint violations wrap [shared.ErrConflict].
package repositories
