// ABOUTME: Prometheus collectors for socket and registry activity
// ABOUTME: Nil-safe recorder methods so components work without a registry

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "deeplearn"

// Metrics exposes Prometheus collectors that report transport activity.
type Metrics struct {
	activeConversations prometheus.Gauge
	framesReceived      *prometheus.CounterVec
	messagesSent        prometheus.Counter
	queueEvictions      prometheus.Counter
	reconnectAttempts   prometheus.Counter
	stateTransitions    *prometheus.CounterVec
	parseFailures       prometheus.Counter
	sweepRemovals       prometheus.Counter
}

// MustNew constructs Metrics registered with reg (prometheus.DefaultRegisterer
// when nil). Registration errors panic, like promauto.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		activeConversations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "active_conversations",
			Help:      "Conversations currently held by the registry.",
		}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "frames_received_total",
			Help:      "Inbound frames parsed, by frame type.",
		}, []string{"type"}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "messages_sent_total",
			Help:      "Chat frames written to the socket.",
		}),
		queueEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "queue_evictions_total",
			Help:      "Queued outbound messages dropped because the queue was full.",
		}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "reconnect_attempts_total",
			Help:      "Automatic reconnect attempts scheduled after unexpected closes.",
		}),
		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "state_transitions_total",
			Help:      "Connection state transitions, by target state.",
		}, []string{"state"}),
		parseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "parse_failures_total",
			Help:      "Inbound frames that could not be decoded.",
		}),
		sweepRemovals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "idle_removals_total",
			Help:      "Conversations removed by the idle sweep.",
		}),
	}

	reg.MustRegister(
		m.activeConversations,
		m.framesReceived,
		m.messagesSent,
		m.queueEvictions,
		m.reconnectAttempts,
		m.stateTransitions,
		m.parseFailures,
		m.sweepRemovals,
	)
	return m
}

// SetActiveConversations records the registry size.
func (m *Metrics) SetActiveConversations(n int) {
	if m == nil {
		return
	}
	m.activeConversations.Set(float64(n))
}

// FrameReceived counts one inbound frame of the given type.
func (m *Metrics) FrameReceived(frameType string) {
	if m == nil {
		return
	}
	if frameType == "" {
		frameType = "unknown"
	}
	m.framesReceived.WithLabelValues(frameType).Inc()
}

// MessageSent counts one chat frame written.
func (m *Metrics) MessageSent() {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
}

// QueueEvicted counts one dropped queued message.
func (m *Metrics) QueueEvicted() {
	if m == nil {
		return
	}
	m.queueEvictions.Inc()
}

// ReconnectScheduled counts one scheduled reconnect.
func (m *Metrics) ReconnectScheduled() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}

// StateChanged counts a transition into state.
func (m *Metrics) StateChanged(state string) {
	if m == nil {
		return
	}
	m.stateTransitions.WithLabelValues(state).Inc()
}

// ParseFailed counts one undecodable frame.
func (m *Metrics) ParseFailed() {
	if m == nil {
		return
	}
	m.parseFailures.Inc()
}

// IdleRemoved counts one conversation removed by the sweep.
func (m *Metrics) IdleRemoved() {
	if m == nil {
		return
	}
	m.sweepRemovals.Inc()
}
