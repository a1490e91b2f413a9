package pulsar

// State is the subscriber's connection state. Owned exclusively by the
// subscriber's run loop; observers read it for logging and health checks.
type State int32

const (
	// StateDisconnected is the initial state before the first connect.
	StateDisconnected State = iota

	// StateConnecting means a dial attempt is in flight.
	StateConnecting

	// StateSubscribed means the handshake completed and the consumer is
	// registered, but no message has arrived yet.
	StateSubscribed

	// StateStreaming means at least one message has been received on the
	// current connection.
	StateStreaming

	// StateBackoff means the last connection failed and the subscriber is
	// waiting out a reconnect delay.
	StateBackoff

	// StateClosed is terminal: explicit cancellation, no further
	// reconnect attempts.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateStreaming:
		return "streaming"
	case StateBackoff:
		return "backoff"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
