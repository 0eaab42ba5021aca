// ABOUTME: Ordered callback delivery for socket observers
// ABOUTME: Events are posted under the socket lock and delivered one at a time after it is released

package socket

import "sync"

// notifier serialises observer callbacks. post records a callback in event
// order; drain runs queued callbacks until none remain. Only one goroutine
// drains at a time, so callbacks never overlap and keep their order, and a
// callback that re-enters the socket simply queues behind the current one.
type notifier struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

func (n *notifier) post(fn func()) {
	n.mu.Lock()
	n.queue = append(n.queue, fn)
	n.mu.Unlock()
}

func (n *notifier) drain() {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return
	}
	n.running = true
	for len(n.queue) > 0 {
		fn := n.queue[0]
		n.queue[0] = nil
		n.queue = n.queue[1:]
		n.mu.Unlock()

		fn()

		n.mu.Lock()
	}
	n.running = false
	n.mu.Unlock()
}
