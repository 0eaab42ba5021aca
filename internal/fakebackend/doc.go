// Package fakebackend is an in-process learning-coach server for tests and
// local runs. It serves the session endpoints and the per-topic socket,
// echoes learner turns as assistant messages, answers heartbeats and can
// drop or close every connection on demand.
package fakebackend
