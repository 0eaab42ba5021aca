// ABOUTME: TTL and size bounded set of seen message IDs
// ABOUTME: Keeps assistant messages replayed after a reconnect out of conversation history

package dedupe

import (
	"container/list"
	"sync"
	"time"

	"github.com/brianfields/deeplearn-sub010/internal/clock"
)

const (
	// DefaultTTL is how long a message ID is remembered.
	DefaultTTL = 30 * time.Minute

	// DefaultMaxSize bounds the number of remembered IDs per cache.
	DefaultMaxSize = 1000

	sweepInterval = time.Minute
)

type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache remembers message IDs for a TTL, evicting the oldest in O(1) when
// full. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	sched   clock.Scheduler

	stopSweep func()
}

// New creates a cache. Non-positive ttl or maxSize fall back to the
// defaults. A nil sched uses the wall clock.
func New(ttl time.Duration, maxSize int, sched clock.Scheduler) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if sched == nil {
		sched = clock.Real()
	}
	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		sched:   sched,
	}
	c.stopSweep = clock.Every(sched, sweepInterval, c.sweep)
	return c
}

// Seen reports whether id was marked within the TTL.
func (c *Cache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.seen[id]
	return ok && c.sched.Now().Sub(e.seenAt) < c.ttl
}

// CheckAndMark reports whether id is a duplicate. A new (or expired) id is
// marked and false is returned.
func (c *Cache) CheckAndMark(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.sched.Now()
	if e, ok := c.seen[id]; ok && now.Sub(e.seenAt) < c.ttl {
		return true
	}
	c.markLocked(id, now)
	return false
}

// Mark records id, refreshing it if already present.
func (c *Cache) Mark(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(id, c.sched.Now())
}

// Len returns the number of remembered IDs, expired ones included until the
// next sweep.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) markLocked(id string, now time.Time) {
	if e, ok := c.seen[id]; ok {
		e.seenAt = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			oldest, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.seen, oldest)
		}
	}

	c.seen[id] = &entry{seenAt: now, element: c.order.PushBack(id)}
}

// sweep drops expired IDs. Entries are ordered by last mark, so it stops at
// the first live one.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.sched.Now()
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		id, _ := front.Value.(string)
		if now.Sub(c.seen[id].seenAt) < c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.seen, id)
	}
}

// Close stops the expiry sweep. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	stop := c.stopSweep
	c.stopSweep = nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
}
