// ABOUTME: One active learning conversation: history, subscribers and its socket
// ABOUTME: Decodes inbound frames and mirrors socket state into the connected flag

package conversation

import (
	"encoding/json"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/brianfields/deeplearn-sub010/internal/dedupe"
	"github.com/brianfields/deeplearn-sub010/internal/socket"
)

// Transport is the part of socket.Socket a conversation drives.
type Transport interface {
	Send(text string)
	Close(code int, reason string)
	Reconnect() error
	State() socket.State
	Stats() socket.Stats
}

// Conversation is an active conversation held by a Registry.
type Conversation struct {
	key       string
	pathID    string
	topicID   string
	sessionID string
	metadata  map[string]any
	createdAt time.Time

	reg       *Registry
	logger    *slog.Logger
	seen      *dedupe.Cache
	transport Transport

	mu           sync.Mutex
	subs         []subscriber
	nextSubID    uint64
	messages     []ChatMessage
	lastActivity time.Time
	state        socket.State
	connected    bool
	connectedAt  time.Time
}

func newConversation(r *Registry, key, pathID, topicID string, session *Session) *Conversation {
	now := r.sched.Now()
	c := &Conversation{
		key:          key,
		pathID:       pathID,
		topicID:      topicID,
		createdAt:    now,
		reg:          r,
		logger:       r.logger.With("conversation_key", key),
		seen:         dedupe.New(r.cfg.DedupeTTL, r.cfg.DedupeSize, r.sched),
		lastActivity: now,
		state:        socket.StateConnecting,
	}
	if session != nil {
		c.sessionID = session.SessionID
		c.metadata = maps.Clone(session.Metadata)
		c.messages = slices.Clone(session.Messages)
		for _, m := range session.Messages {
			if m.ID != "" {
				c.seen.Mark(m.ID)
			}
		}
	}
	return c
}

// Key returns the registry key.
func (c *Conversation) Key() string { return c.key }

// PathID returns the learning path ID.
func (c *Conversation) PathID() string { return c.pathID }

// TopicID returns the topic ID.
func (c *Conversation) TopicID() string { return c.topicID }

// SessionID returns the server session ID from the history collaborator.
func (c *Conversation) SessionID() string { return c.sessionID }

// Metadata returns a copy of the session metadata.
func (c *Conversation) Metadata() map[string]any { return maps.Clone(c.metadata) }

// CreatedAt returns when the conversation was added to the registry.
func (c *Conversation) CreatedAt() time.Time { return c.createdAt }

// Messages returns a copy of the history in arrival order.
func (c *Conversation) Messages() []ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.messages)
}

// Connected reports whether the socket is currently open.
func (c *Conversation) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// State returns the last socket state seen.
func (c *Conversation) State() socket.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastActivity returns the time of the last send, inbound frame or start.
func (c *Conversation) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

func (c *Conversation) subscribe(h Handlers) func() {
	c.mu.Lock()
	c.nextSubID++
	id := c.nextSubID
	c.subs = append(c.subs, subscriber{id: id, h: h})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.subs = slices.DeleteFunc(c.subs, func(s subscriber) bool { return s.id == id })
	}
}

func (c *Conversation) touch() {
	now := c.reg.sched.Now()
	c.mu.Lock()
	c.lastActivity = now
	c.mu.Unlock()
}

func (c *Conversation) handlersLocked() []Handlers {
	out := make([]Handlers, len(c.subs))
	for i, s := range c.subs {
		out[i] = s.h
	}
	return out
}

// send records a local echo of the learner's turn and hands the text to the
// socket.
func (c *Conversation) send(id, text string) ChatMessage {
	now := c.reg.sched.Now()
	msg := ChatMessage{
		ID:        id,
		Role:      RoleUser,
		Content:   text,
		Timestamp: now,
	}
	c.seen.Mark(id)

	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.lastActivity = now
	c.mu.Unlock()

	c.transport.Send(text)
	return msg
}

func (c *Conversation) socketHandlers() socket.Handlers {
	return socket.Handlers{
		OnMessage:     c.handleFrame,
		OnStateChange: c.handleState,
		OnError:       c.handleError,
	}
}

func (c *Conversation) handleFrame(f socket.Frame) {
	c.touch()

	switch f.Type {
	case socket.FrameChatMessage:
		c.handleChat(f)

	case socket.FrameProgressUpdate:
		p := Progress{Raw: f.Progress}
		if len(f.Progress) > 0 {
			if err := json.Unmarshal(f.Progress, &p); err != nil {
				c.handleError(&socket.ParseError{Data: f.Raw, Err: err})
				return
			}
		}
		c.mu.Lock()
		hs := c.handlersLocked()
		c.mu.Unlock()
		for _, h := range hs {
			if h.OnProgress != nil {
				h.OnProgress(p)
			}
		}
		c.reg.publish(Event{Type: EventProgress, Key: c.key, Progress: &p})

	case socket.FrameSessionState:
		s := SessionState{Raw: f.State}
		if len(f.State) > 0 {
			if err := json.Unmarshal(f.State, &s); err != nil {
				c.handleError(&socket.ParseError{Data: f.Raw, Err: err})
				return
			}
		}
		c.mu.Lock()
		hs := c.handlersLocked()
		c.mu.Unlock()
		for _, h := range hs {
			if h.OnSessionState != nil {
				h.OnSessionState(s)
			}
		}
		c.reg.publish(Event{Type: EventSessionState, Key: c.key, SessionState: &s})

	case socket.FrameError:
		perr, err := decodeProtocolError(f.Error)
		if err != nil {
			c.handleError(&socket.ParseError{Data: f.Raw, Err: err})
			return
		}
		c.logger.Warn("server reported error", "code", perr.Code, "message", perr.Message)
		c.handleError(perr)

	default:
		c.logger.Debug("ignoring frame", "type", string(f.Type))
	}
}

func (c *Conversation) handleChat(f socket.Frame) {
	var msg ChatMessage
	if err := json.Unmarshal(f.Message, &msg); err != nil {
		c.handleError(&socket.ParseError{Data: f.Raw, Err: err})
		return
	}
	if msg.ID != "" && c.seen.CheckAndMark(msg.ID) {
		c.logger.Debug("dropping duplicate chat message", "message_id", msg.ID)
		return
	}
	if msg.Role == "" {
		msg.Role = RoleAssistant
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = c.reg.sched.Now()
	}

	c.mu.Lock()
	c.messages = append(c.messages, msg)
	hs := c.handlersLocked()
	c.mu.Unlock()

	for _, h := range hs {
		if h.OnMessage != nil {
			h.OnMessage(msg)
		}
	}
	c.reg.publish(Event{Type: EventMessage, Key: c.key, Message: &msg})
}

func (c *Conversation) handleState(st socket.State) {
	now := c.reg.sched.Now()

	c.mu.Lock()
	c.state = st
	connected := st == socket.StateConnected
	if connected && !c.connected {
		c.connectedAt = now
	}
	if !connected {
		c.connectedAt = time.Time{}
	}
	c.connected = connected
	hs := c.handlersLocked()
	c.mu.Unlock()

	c.logger.Debug("connection change", "state", st.String())
	for _, h := range hs {
		if h.OnConnectionChange != nil {
			h.OnConnectionChange(connected, st)
		}
	}
	c.reg.publish(Event{Type: EventConnection, Key: c.key, Connected: connected, State: st})
}

func (c *Conversation) handleError(err error) {
	c.mu.Lock()
	hs := c.handlersLocked()
	c.mu.Unlock()

	for _, h := range hs {
		if h.OnError != nil {
			h.OnError(err)
		}
	}
	c.reg.publish(Event{Type: EventError, Key: c.key, Err: err})
}

// Stats summarises a conversation at a point in time.
type Stats struct {
	Key               string
	TotalMessages     int
	UserMessages      int
	AssistantMessages int
	SessionDuration   time.Duration
	ConnectionUptime  time.Duration // zero unless connected
	Connected         bool
	LastActivity      time.Time
	Transport         socket.Stats
}

func (c *Conversation) stats(now time.Time) Stats {
	c.mu.Lock()
	st := Stats{
		Key:             c.key,
		TotalMessages:   len(c.messages),
		SessionDuration: now.Sub(c.createdAt),
		Connected:       c.connected,
		LastActivity:    c.lastActivity,
	}
	for _, m := range c.messages {
		switch m.Role {
		case RoleUser:
			st.UserMessages++
		case RoleAssistant:
			st.AssistantMessages++
		}
	}
	if c.connected && !c.connectedAt.IsZero() {
		st.ConnectionUptime = now.Sub(c.connectedAt)
	}
	c.mu.Unlock()

	st.Transport = c.transport.Stats()
	return st
}

func (c *Conversation) close(reason string) {
	c.transport.Close(socket.CloseNormalClosure, reason)
	c.seen.Close()
}
