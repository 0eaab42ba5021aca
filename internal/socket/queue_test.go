// ABOUTME: Tests for the bounded outbound queue
// ABOUTME: Covers FIFO order, oldest-first eviction and requeue at the head

package socket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue(10)
	q.Push("a")
	q.Push("b")
	q.Push("c")

	assert.Equal(t, []string{"a", "b", "c"}, q.Snapshot())

	got, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, "a", got)
	assert.Equal(t, 2, q.Len())
}

func TestQueue_EvictsOldestWhenFull(t *testing.T) {
	q := NewQueue(2)

	_, evicted := q.Push("a")
	assert.False(t, evicted)
	_, evicted = q.Push("b")
	assert.False(t, evicted)

	dropped, evicted := q.Push("c")
	assert.True(t, evicted)
	assert.Equal(t, "a", dropped)
	assert.Equal(t, []string{"b", "c"}, q.Snapshot())
}

func TestQueue_PushFront(t *testing.T) {
	q := NewQueue(2)
	q.Push("b")

	assert.True(t, q.PushFront("a"))
	assert.Equal(t, []string{"a", "b"}, q.Snapshot())

	assert.False(t, q.PushFront("z"), "full queue rejects requeue")
	assert.Equal(t, []string{"a", "b"}, q.Snapshot())
}

func TestQueue_PopEmpty(t *testing.T) {
	q := NewQueue(1)
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestQueue_NonPositiveCapacityUsesDefault(t *testing.T) {
	assert.Equal(t, defaultQueueCapacity, NewQueue(0).Cap())
	assert.Equal(t, defaultQueueCapacity, NewQueue(-3).Cap())
}
