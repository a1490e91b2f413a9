package pulsar

import "errors"

var (
	// ErrStreamClosed is returned by NextEvent after the subscriber has
	// been closed or its context cancelled. It signals graceful end of
	// stream, never a failure.
	ErrStreamClosed = errors.New("event stream closed")

	// ErrNotStarted is returned by NextEvent before Start has been called.
	ErrNotStarted = errors.New("subscriber not started")
)
