package bridge

import "errors"

// Domain-specific errors for bridge operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when publishing on a disconnected client.
	ErrNotConnected = errors.New("bridge: client not connected")

	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("bridge: connection failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("bridge: publish failed")

	// ErrInvalidQoS is returned when an invalid QoS level is configured.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("bridge: invalid QoS level (must be 0, 1, or 2)")
)
