// ABOUTME: Scheduler abstraction over wall-clock timers
// ABOUTME: Lets sockets and registries run reconnect, heartbeat and sweep timers on an injected clock

package clock

import "time"

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	// Stop prevents the timer from firing. It returns false if the timer
	// already fired or was already stopped.
	Stop() bool
}

// Scheduler creates timers and reports the current time.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

// Real returns a Scheduler backed by the time package.
func Real() Scheduler {
	return realScheduler{}
}

func (realScheduler) Now() time.Time {
	return time.Now()
}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Every runs f every interval until the returned stop function is called.
// Each run is scheduled only after the previous one returned.
func Every(s Scheduler, interval time.Duration, f func()) (stop func()) {
	t := &ticker{sched: s, interval: interval, fn: f}
	t.arm()
	return t.stop
}
