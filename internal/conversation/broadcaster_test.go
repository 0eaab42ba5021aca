// ABOUTME: Tests for event fan-out to conversation watchers
// ABOUTME: Covers delivery, slow watchers, cancellation and close on conversation removal

package conversation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianfields/deeplearn-sub010/internal/socket"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func requireClosed(t *testing.T, ch <-chan Event) {
	t.Helper()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestWatch_ReceivesDispatchedEvents(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t, "p", "t", Handlers{})
	events, cancel := h.reg.Watch(t.Context(), "p", "t")
	defer cancel()

	tr := h.factory.get(t, "t")
	tr.setState(socket.StateConnected)
	tr.deliver(t, chatFrame("a1", "assistant", "hi"))
	tr.deliver(t, map[string]any{"type": "progress_update", "progress": map[string]any{"percent": 10}})

	ev := receive(t, events)
	assert.Equal(t, EventConnection, ev.Type)
	assert.True(t, ev.Connected)
	assert.Equal(t, "p|t", ev.Key)
	assert.Equal(t, testStart, ev.At)

	ev = receive(t, events)
	assert.Equal(t, EventMessage, ev.Type)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "a1", ev.Message.ID)

	ev = receive(t, events)
	assert.Equal(t, EventProgress, ev.Type)
	require.NotNil(t, ev.Progress)
}

func TestWatch_OnlyMatchingKey(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t, "p", "a", Handlers{})
	h.start(t, "p", "b", Handlers{})
	events, cancel := h.reg.Watch(t.Context(), "p", "a")
	defer cancel()

	h.factory.get(t, "b").deliver(t, chatFrame("b1", "assistant", "other"))
	h.factory.get(t, "a").deliver(t, chatFrame("a1", "assistant", "mine"))

	ev := receive(t, events)
	assert.Equal(t, "a1", ev.Message.ID)
}

func TestWatch_SlowWatcherDropsInsteadOfBlocking(t *testing.T) {
	h := newHarness(t, nil)
	rec := &events{}
	h.start(t, "p", "t", rec.handlers())
	events, cancel := h.reg.Watch(t.Context(), "p", "t")
	defer cancel()

	tr := h.factory.get(t, "t")
	for i := range watcherBufferSize + 10 {
		tr.deliver(t, chatFrame(fmt.Sprintf("m%03d", i), "assistant", "x"))
	}

	assert.Len(t, rec.messageIDs(), watcherBufferSize+10, "handlers still see everything")
	assert.Len(t, events, watcherBufferSize)
}

func TestWatch_CancelClosesChannel(t *testing.T) {
	h := newHarness(t, nil)
	events, cancel := h.reg.Watch(t.Context(), "p", "t")
	cancel()
	requireClosed(t, events)
}

func TestWatch_ContextCancelClosesChannel(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(t.Context())
	events, stop := h.reg.Watch(ctx, "p", "t")
	defer stop()

	cancel()
	requireClosed(t, events)
}

func TestWatch_ClosedWithConversation(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t, "p", "t", Handlers{})
	events, cancel := h.reg.Watch(t.Context(), "p", "t")
	defer cancel()

	h.reg.CloseConversation("p", "t")

	// The final disconnect is delivered before the channel closes.
	ev := receive(t, events)
	assert.Equal(t, EventConnection, ev.Type)
	assert.False(t, ev.Connected)
	requireClosed(t, events)
}
