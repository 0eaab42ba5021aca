// ABOUTME: Self re-arming periodic timer built on Scheduler.AfterFunc
// ABOUTME: Used for heartbeats and registry sweeps so fake clocks can step them

package clock

import (
	"sync"
	"time"
)

type ticker struct {
	sched    Scheduler
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	timer   Timer
	stopped bool
}

func (t *ticker) arm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.timer = t.sched.AfterFunc(t.interval, t.fire)
}

func (t *ticker) fire() {
	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()
	if stopped {
		return
	}

	t.fn()
	t.arm()
}

func (t *ticker) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
