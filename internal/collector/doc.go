// Package collector polls device event history on a fixed interval and
// reconciles it into the store.
//
// One cycle enumerates the device universe, then walks each device
// independently: read its cursor, page through history since the cursor
// (with a one-second overlap for same-millisecond edge cases), store the
// batch, and advance the cursor to the newest timestamp durably stored.
// A failing device is logged and skipped with its cursor untouched, so
// the next cycle retries the same window; one device can never abort a
// cycle. Rate-limited pages are retried inside the cycle with the
// broker's retry hint when it sends one.
//
// Every cycle is recorded in the store's run history for the status
// command.
package collector
