// ABOUTME: Test doubles for the conversation registry
// ABOUTME: A scripted transport, a counting transport factory and a gated session client

package conversation

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brianfields/deeplearn-sub010/internal/socket"
)

type fakeTransport struct {
	topicID string
	h       socket.Handlers

	mu         sync.Mutex
	state      socket.State
	sent       []string
	closed     bool
	closeCode  int
	reconnects int
}

func (f *fakeTransport) Send(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
}

func (f *fakeTransport) Close(code int, _ string) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.closeCode = code
	f.state = socket.StateDisconnected
	f.mu.Unlock()

	if f.h.OnStateChange != nil {
		f.h.OnStateChange(socket.StateDisconnected)
	}
}

func (f *fakeTransport) Reconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return socket.ErrClosed
	}
	f.reconnects++
	return nil
}

func (f *fakeTransport) State() socket.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) Stats() socket.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return socket.Stats{TopicID: f.topicID, State: f.state, Sent: uint64(len(f.sent))}
}

// setState simulates a socket state transition.
func (f *fakeTransport) setState(st socket.State) {
	f.mu.Lock()
	f.state = st
	f.mu.Unlock()
	f.h.OnStateChange(st)
}

// deliver simulates an inbound frame.
func (f *fakeTransport) deliver(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	frame, err := socket.ParseFrame(data)
	require.NoError(t, err)
	f.h.OnMessage(frame)
}

func (f *fakeTransport) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeFactory struct {
	mu         sync.Mutex
	transports map[string]*fakeTransport
	calls      int
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{transports: make(map[string]*fakeTransport)}
}

func (f *fakeFactory) open(topicID string, h socket.Handlers) Transport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	tr := &fakeTransport{topicID: topicID, h: h, state: socket.StateConnecting}
	f.transports[topicID] = tr
	return tr
}

func (f *fakeFactory) get(t *testing.T, topicID string) *fakeTransport {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	tr, ok := f.transports[topicID]
	require.True(t, ok, "no transport for %s", topicID)
	return tr
}

func (f *fakeFactory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClient struct {
	mu            sync.Mutex
	continueErr   error
	startErr      error
	session       *Session
	continueCalls int
	startCalls    int
	gate          chan struct{}
}

func (c *fakeClient) wait(ctx context.Context) error {
	if c.gate == nil {
		return nil
	}
	select {
	case <-c.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeClient) ContinueConversation(ctx context.Context, pathID, topicID string) (*Session, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.continueCalls++
	if c.continueErr != nil {
		return nil, c.continueErr
	}
	return c.sessionFor(pathID, topicID), nil
}

func (c *fakeClient) StartConversation(_ context.Context, pathID, topicID string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startCalls++
	if c.startErr != nil {
		return nil, c.startErr
	}
	return &Session{SessionID: "new-session", PathID: pathID, TopicID: topicID}, nil
}

func (c *fakeClient) sessionFor(pathID, topicID string) *Session {
	if c.session != nil {
		return c.session
	}
	return &Session{SessionID: "existing-session", PathID: pathID, TopicID: topicID}
}

func (c *fakeClient) counts() (continues, starts int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.continueCalls, c.startCalls
}

// events records registry handler callbacks.
type events struct {
	mu          sync.Mutex
	messages    []ChatMessage
	progress    []Progress
	states      []SessionState
	connections []bool
	errs        []error
}

func (e *events) handlers() Handlers {
	return Handlers{
		OnMessage: func(m ChatMessage) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.messages = append(e.messages, m)
		},
		OnProgress: func(p Progress) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.progress = append(e.progress, p)
		},
		OnSessionState: func(s SessionState) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.states = append(e.states, s)
		},
		OnConnectionChange: func(connected bool, _ socket.State) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.connections = append(e.connections, connected)
		},
		OnError: func(err error) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.errs = append(e.errs, err)
		},
	}
}

func (e *events) messageIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, len(e.messages))
	for i, m := range e.messages {
		ids[i] = m.ID
	}
	return ids
}

func (e *events) errors() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]error(nil), e.errs...)
}
