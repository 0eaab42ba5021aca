// Package socket implements the persistent WebSocket transport for a single
// learning conversation.
//
// # Overview
//
// A Socket owns exactly one connection to one conversation topic endpoint
// ({BaseURL}/ws/learning-coach/{topicID}). It connects as soon as it is
// constructed and keeps reconnecting with exponential backoff after any
// unexpected close, until the configured ceiling is reached.
//
// # States
//
//	connecting -> connected -> reconnecting -> connecting -> ...
//	                        \-> disconnected   (normal close, code 1000)
//	reconnecting ... -> failed                 (attempt ceiling reached)
//
// Close is terminal for the instance. Reconnect resets the attempt counter
// and is the manual retry path out of failed.
//
// # Outbound delivery
//
// Send transmits immediately while connected and otherwise appends to a
// bounded FIFO queue (default 100). When the queue is full the oldest entry
// is evicted, so only the newest messages survive a long outage. The queue
// is flushed in order on every successful open. A failed write puts the
// message back at the head of the queue.
//
// # Wire format
//
//	outbound chat:      {"message": "..."}
//	outbound heartbeat: {"type": "ping"}
//	inbound:            {"type": "chat_message|progress_update|session_state|error", ...}
//
// # Observers
//
// Callbacks are registered with Subscribe (or WithHandlers before the first
// connect) and are delivered one at a time, in the order the events
// happened, never while the socket's locks are held. Observers may call
// back into the socket.
package socket
