// Package clock provides the scheduler used by the socket and the
// conversation registry for reconnect backoff, heartbeats and idle sweeps.
//
// Components take a Scheduler at construction instead of calling the time
// package directly, so tests can drive every timer with a Fake:
//
//	clk := clock.NewFake(time.Unix(0, 0))
//	sock := socket.New("topic-1", cfg, socket.WithScheduler(clk))
//	clk.Advance(2 * time.Second) // fires the first reconnect timer
//
// Periodic work is written as a self re-arming AfterFunc so that a Fake
// advances it one tick at a time.
package clock
