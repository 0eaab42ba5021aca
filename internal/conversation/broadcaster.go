// ABOUTME: In-memory fan-out of conversation events to channel watchers
// ABOUTME: Publishes every dispatched event to all watchers of a conversation key

package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brianfields/deeplearn-sub010/internal/socket"
)

// watcherBufferSize is the channel buffer for each watcher.
const watcherBufferSize = 64

// EventType discriminates Event.
type EventType string

const (
	EventMessage      EventType = "message"
	EventProgress     EventType = "progress"
	EventSessionState EventType = "session_state"
	EventConnection   EventType = "connection"
	EventError        EventType = "error"
)

// Event is a dispatched conversation event as seen by Watch. Only the field
// matching Type is set, except Connected and State which accompany
// EventConnection.
type Event struct {
	Type EventType
	Key  string
	At   time.Time

	Message      *ChatMessage
	Progress     *Progress
	SessionState *SessionState
	Connected    bool
	State        socket.State
	Err          error
}

// broadcaster delivers events to watchers without blocking dispatch.
type broadcaster struct {
	mu       sync.RWMutex
	watchers map[string]map[string]chan Event // key -> watcher ID -> ch
	logger   *slog.Logger
}

func newBroadcaster(logger *slog.Logger) *broadcaster {
	return &broadcaster{
		watchers: make(map[string]map[string]chan Event),
		logger:   logger.With("component", "broadcaster"),
	}
}

// subscribe registers a watcher for key. The watcher is removed when ctx is
// done.
func (b *broadcaster) subscribe(ctx context.Context, key string) (<-chan Event, string) {
	id := uuid.New().String()
	ch := make(chan Event, watcherBufferSize)

	b.mu.Lock()
	if _, ok := b.watchers[key]; !ok {
		b.watchers[key] = make(map[string]chan Event)
	}
	b.watchers[key][id] = ch
	b.mu.Unlock()

	b.logger.Debug("watcher added", "conversation_key", key, "watcher_id", id)

	go func() {
		<-ctx.Done()
		b.unsubscribe(key, id)
	}()

	return ch, id
}

// publish sends ev to every watcher of ev.Key, dropping it for watchers whose
// buffer is full. Sends happen under the read lock so a concurrent
// unsubscribe cannot close a channel mid-send.
func (b *broadcaster) publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.watchers[ev.Key] {
		select {
		case ch <- ev:
		default:
			b.logger.Debug("dropped event for slow watcher",
				"conversation_key", ev.Key,
				"watcher_id", id,
				"event_type", string(ev.Type))
		}
	}
}

func (b *broadcaster) unsubscribe(key, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.watchers[key]
	if !ok {
		return
	}
	ch, ok := subs[id]
	if !ok {
		return
	}
	delete(subs, id)
	close(ch)
	if len(subs) == 0 {
		delete(b.watchers, key)
	}

	b.logger.Debug("watcher removed", "conversation_key", key, "watcher_id", id)
}

// closeKey closes every watcher of key.
func (b *broadcaster) closeKey(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.watchers[key] {
		close(ch)
		delete(b.watchers[key], id)
	}
	delete(b.watchers, key)
}

// close closes every watcher channel.
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, subs := range b.watchers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.watchers, key)
	}
}
