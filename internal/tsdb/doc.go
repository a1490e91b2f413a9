// Package tsdb mirrors numeric device datapoints into InfluxDB.
//
// The mirror is optional (config-gated, off by default) and strictly
// best-effort: SQLite remains the system of record, and a write failure
// here costs a chart point, never a log record. Writes are non-blocking
// and batched by the client library; async write errors surface through
// an error callback.
//
// Only records whose value parses as a number are mirrored — InfluxDB
// fields want numeric series, and the raw JSON for everything else is
// already in the store.
package tsdb
