// Package pulsar maintains the real-time event stream from the vendor's
// message bus over WebSocket.
//
// The Subscriber owns a single connection and its full lifecycle:
// connect, authenticate (HTTP Basic with a password derived from the
// access credential), decode inbound frames, acknowledge deliveries, and
// reconnect with exponential backoff after any failure. Reconnection is
// an iterative loop, never recursive, and every wait is cancellable.
//
// Consumers call NextEvent, which blocks until a decoded event arrives
// or the stream ends. A malformed frame is dropped and acknowledged so
// the broker does not redeliver it; one bad payload never terminates the
// stream. The broker delivers at least once — redelivered events are
// absorbed downstream by the store's deduplication key, not here.
package pulsar
