package tsdb

import "errors"

// Sentinel errors for mirror operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected indicates the client is not connected to InfluxDB.
	ErrNotConnected = errors.New("tsdb: not connected")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("tsdb: connection failed")

	// ErrDisabled indicates the mirror is disabled in config.
	ErrDisabled = errors.New("tsdb: disabled in configuration")
)
