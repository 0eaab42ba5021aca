// ABOUTME: Caller-facing callbacks for conversation events
// ABOUTME: A conversation fans every event out to all registered handler sets

package conversation

import "github.com/brianfields/deeplearn-sub010/internal/socket"

// Handlers receives conversation events. Any field may be nil. Callbacks
// for one conversation never run concurrently and arrive in frame order.
type Handlers struct {
	OnMessage          func(msg ChatMessage)
	OnProgress         func(p Progress)
	OnSessionState     func(s SessionState)
	OnConnectionChange func(connected bool, state socket.State)
	OnError            func(err error)
}

type subscriber struct {
	id uint64
	h  Handlers
}
