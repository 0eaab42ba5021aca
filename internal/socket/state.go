// ABOUTME: Connection state enumeration for conversation sockets
// ABOUTME: connecting, connected, disconnected, reconnecting, failed

package socket

// State is the connection state of a Socket.
type State int

const (
	// StateConnecting means a dial is in flight.
	StateConnecting State = iota

	// StateConnected means the socket is open and the queue is being drained.
	StateConnected

	// StateDisconnected means the socket is closed and no reconnect is pending.
	StateDisconnected

	// StateReconnecting means a reconnect timer is armed after an unexpected close.
	StateReconnecting

	// StateFailed means reconnect attempts were exhausted.
	StateFailed
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
