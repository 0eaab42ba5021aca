// Package metrics holds the Prometheus collectors for conversation sockets
// and the conversation registry. A nil *Metrics is valid and records nothing.
package metrics
