// Package conversation multiplexes learning conversations over per-topic
// sockets.
//
// # Registry
//
// A Registry owns at most one Conversation per key, where the key joins the
// learning path and topic identifiers:
//
//	reg := conversation.NewRegistry(sessionClient,
//		conversation.WithSocketConfig(cfg.SocketSettings()),
//		conversation.WithLogger(logger))
//	defer reg.Close()
//
//	conv, err := reg.StartConversation(ctx, conversation.StartRequest{
//		PathID:   "path-1",
//		TopicID:  "topic-9",
//		Handlers: conversation.Handlers{OnMessage: show},
//	})
//
// Starting a conversation that already exists returns the existing one and
// adds the caller's handlers to it. Concurrent starts for one key share a
// single history fetch and a single socket.
//
// # History
//
// Before the socket is opened the registry asks its SessionClient to
// continue the conversation, falling back to starting a new one when that
// fails. The returned messages seed the conversation history.
//
// # Dispatch
//
// Inbound frames are decoded by type:
//
//   - chat_message: deduplicated by message ID, appended to history, OnMessage
//   - progress_update: OnProgress
//   - session_state: OnSessionState
//   - error: OnError with a *ProtocolError
//
// Socket state changes are mirrored into the conversation and forwarded to
// OnConnectionChange. Frames reach handlers in arrival order.
//
// # Idle cleanup
//
// Every CleanupInterval the registry removes conversations that are not
// connected and have been idle for longer than MaxInactivity, closing their
// sockets.
//
// # Watching
//
// Watch returns a channel carrying every dispatched Event for a key. Slow
// watchers drop events rather than stall dispatch.
package conversation
