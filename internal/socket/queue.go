// ABOUTME: Bounded FIFO of outbound chat payloads owned by one socket
// ABOUTME: Appending at capacity evicts the oldest entry in O(1)

package socket

import "container/list"

// Queue is a bounded FIFO of outgoing message payloads. It is not safe for
// concurrent use; the owning Socket guards it with its own lock.
type Queue struct {
	items    *list.List // oldest at front
	capacity int
}

// NewQueue creates a queue holding at most capacity messages.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &Queue{
		items:    list.New(),
		capacity: capacity,
	}
}

// Push appends text. If the queue is full the oldest message is dropped
// first; the dropped payload is returned with evicted=true.
func (q *Queue) Push(text string) (dropped string, evicted bool) {
	if q.items.Len() >= q.capacity {
		front := q.items.Front()
		dropped, _ = front.Value.(string)
		q.items.Remove(front)
		evicted = true
	}
	q.items.PushBack(text)
	return dropped, evicted
}

// PushFront returns a message to the head of the queue after a failed
// write. A message at the head is the oldest, so when the queue is already
// full it is the one evicted and false is returned.
func (q *Queue) PushFront(text string) bool {
	if q.items.Len() >= q.capacity {
		return false
	}
	q.items.PushFront(text)
	return true
}

// Pop removes and returns the oldest message.
func (q *Queue) Pop() (string, bool) {
	front := q.items.Front()
	if front == nil {
		return "", false
	}
	q.items.Remove(front)
	text, _ := front.Value.(string)
	return text, true
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	return q.items.Len()
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return q.capacity
}

// Snapshot returns the queued messages oldest first.
func (q *Queue) Snapshot() []string {
	out := make([]string, 0, q.items.Len())
	for e := q.items.Front(); e != nil; e = e.Next() {
		text, _ := e.Value.(string)
		out = append(out, text)
	}
	return out
}
