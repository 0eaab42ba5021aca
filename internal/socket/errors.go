// ABOUTME: Error values reported by conversation sockets
// ABOUTME: Sentinels for terminal conditions, typed errors for transport and parse faults

package socket

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by Reconnect after Close.
	ErrClosed = errors.New("socket closed")

	// ErrReconnectExhausted is reported through OnError when the socket
	// enters StateFailed.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// ParseError reports an inbound frame that could not be decoded. It does not
// affect connection state.
type ParseError struct {
	Data []byte
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing frame: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// TransportError reports a socket-level failure during Op ("dial", "read",
// "write", "heartbeat"). The close that usually follows drives state.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("socket %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
