// Package watcher drives the live event stream into the store.
//
// The loop is deliberately thin: pull the next decoded event, translate
// it into a log record with a deterministic event identifier, write it
// through the store's deduplication contract. All reconnection lives in
// the subscriber; all duplicate absorption lives in the store. The
// watcher ends when the stream reports graceful close or the context is
// cancelled, and treats storage failures as fatal so the operator sees
// them.
//
// Newly stored records can optionally fan out to sinks (the MQTT bridge,
// the time-series mirror); sink failures are logged and never block
// ingestion.
package watcher
