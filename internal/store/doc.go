// Package store persists device event logs with an at-most-once
// guarantee per logical event.
//
// Both ingestion paths (the periodic collector and the live watcher)
// write through UpsertLogs, which enforces the deduplication key
// (device_id, event_id, event_time) with INSERT OR IGNORE inside one
// transaction per batch. Offering the same event twice, from either
// producer and in any order, leaves exactly one row. This contract is
// what lets the two producers run unsynchronized against the same
// database.
//
// The store also keeps the collector's per-device cursors and a history
// of collection runs for operator visibility.
package store
