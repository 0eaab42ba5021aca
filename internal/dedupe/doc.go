// Package dedupe suppresses repeated inbound message IDs within a time
// window. Expiry runs on a clock.Scheduler so tests can step it.
package dedupe
