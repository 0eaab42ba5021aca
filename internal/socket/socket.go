// ABOUTME: Persistent WebSocket transport for one learning conversation topic
// ABOUTME: Handles connect/reconnect with backoff, bounded outbound queue, heartbeat and frame delivery

package socket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brianfields/deeplearn-sub010/internal/auth"
	"github.com/brianfields/deeplearn-sub010/internal/clock"
	"github.com/brianfields/deeplearn-sub010/internal/metrics"
)

// Option configures a Socket at construction.
type Option func(*Socket)

// WithDialer replaces the gorilla/websocket dialer.
func WithDialer(d Dialer) Option {
	return func(s *Socket) { s.dialer = d }
}

// WithScheduler replaces the wall-clock scheduler used for backoff and heartbeats.
func WithScheduler(sched clock.Scheduler) Option {
	return func(s *Socket) { s.sched = sched }
}

// WithLogger sets the logger. The socket scopes it with component and topic.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Socket) { s.logger = logger }
}

// WithMetrics records activity into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Socket) { s.metrics = m }
}

// WithTokenSource attaches a bearer token to every dial.
func WithTokenSource(src auth.TokenSource) Option {
	return func(s *Socket) { s.tokens = src }
}

// WithHandlers subscribes h before the first connection attempt starts.
func WithHandlers(h Handlers) Option {
	return func(s *Socket) { s.Subscribe(h) }
}

// Stats is a snapshot of socket counters.
type Stats struct {
	TopicID           string
	State             State
	QueueLength       int
	ReconnectAttempts int
	ConnectedAt       time.Time // zero unless connected
	Sent              uint64
	Received          uint64
	Dropped           uint64
}

// Socket owns one persistent connection to one conversation topic.
type Socket struct {
	topicID string
	url     string
	cfg     Config
	dialer  Dialer
	sched   clock.Scheduler
	tokens  auth.TokenSource
	logger  *slog.Logger
	metrics *metrics.Metrics

	subsMu    sync.RWMutex
	subs      []subscriber
	nextSubID uint64

	notify notifier

	mu             sync.Mutex
	state          State
	gen            uint64 // bumped on every connect attempt, Reconnect and Close
	conn           Conn
	queue          *Queue
	attempts       int
	closed         bool
	flushing       bool
	reconnectTimer clock.Timer
	stopHeartbeat  func()
	cancelDial     context.CancelFunc
	connectedAt    time.Time
	sent           uint64
	received       uint64
	dropped        uint64

	// writeMu serialises writers; gorilla allows one concurrent writer.
	writeMu sync.Mutex
}

// New creates a Socket for topicID and immediately starts connecting.
func New(topicID string, cfg Config, opts ...Option) *Socket {
	cfg = cfg.withDefaults()
	s := &Socket{
		topicID: topicID,
		url:     cfg.EndpointURL(topicID),
		cfg:     cfg,
		state:   StateConnecting,
		queue:   NewQueue(cfg.QueueCapacity),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dialer == nil {
		s.dialer = NewWebsocketDialer()
	}
	if s.sched == nil {
		s.sched = clock.Real()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "socket", "topic_id", topicID)

	s.mu.Lock()
	s.startConnectLocked()
	s.mu.Unlock()

	return s
}

// TopicID returns the topic this socket is bound to.
func (s *Socket) TopicID() string {
	return s.topicID
}

// URL returns the endpoint URL.
func (s *Socket) URL() string {
	return s.url
}

// State returns the current connection state.
func (s *Socket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the socket is open.
func (s *Socket) IsConnected() bool {
	return s.State() == StateConnected
}

// Stats returns a snapshot of the socket counters.
func (s *Socket) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		TopicID:           s.topicID,
		State:             s.state,
		QueueLength:       s.queue.Len(),
		ReconnectAttempts: s.attempts,
		ConnectedAt:       s.connectedAt,
		Sent:              s.sent,
		Received:          s.received,
		Dropped:           s.dropped,
	}
}

// Send transmits text now if connected and queues it otherwise. It never
// fails: when the queue is full the oldest queued message is dropped.
func (s *Socket) Send(text string) {
	s.mu.Lock()
	if s.closed {
		s.dropped++
		s.mu.Unlock()
		s.logger.Warn("send on closed socket dropped")
		return
	}

	if _, evicted := s.queue.Push(text); evicted {
		s.dropped++
		s.metrics.QueueEvicted()
		s.logger.Debug("outbound queue full, dropped oldest message",
			"capacity", s.queue.Cap())
	}
	flush := s.state == StateConnected && s.claimFlushLocked()
	s.mu.Unlock()

	if flush {
		s.flush()
	}
}

// Close cancels any pending reconnect, stops the heartbeat, closes the
// connection with code and reason and leaves the socket disconnected for
// good. Calling Close again has no effect.
func (s *Socket) Close(code int, reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	s.cancelPendingLocked()
	conn := s.conn
	s.conn = nil
	s.connectedAt = time.Time{}
	s.setStateLocked(StateDisconnected)
	s.notify.post(func() { s.emitClose(code, reason) })
	s.mu.Unlock()

	if conn != nil {
		s.writeClose(conn, code, reason)
		_ = conn.Close()
	}
	s.logger.Debug("socket closed", "code", code, "reason", reason)
	s.notify.drain()
}

// Reconnect drops the current connection, resets the attempt counter and
// connects again right away. It is the manual retry path out of
// StateFailed and returns ErrClosed after Close.
func (s *Socket) Reconnect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.cancelPendingLocked()
	conn := s.conn
	s.conn = nil
	s.connectedAt = time.Time{}
	s.attempts = 0
	s.setStateLocked(StateConnecting)
	s.startConnectLocked()
	s.mu.Unlock()

	if conn != nil {
		s.writeClose(conn, CloseNormalClosure, "reconnecting")
		_ = conn.Close()
	}
	s.logger.Info("manual reconnect")
	s.notify.drain()
	return nil
}

// startConnectLocked begins a dial for a new connection generation.
func (s *Socket) startConnectLocked() {
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelDial = cancel
	go s.connect(ctx, gen)
}

// cancelPendingLocked stops every timer and in-flight dial.
func (s *Socket) cancelPendingLocked() {
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.stopHeartbeatLocked()
}

func (s *Socket) connect(ctx context.Context, gen uint64) {
	header := http.Header{}
	bearer, err := auth.BearerHeader(ctx, s.tokens)
	if err != nil {
		s.dialFailed(gen, err)
		return
	}
	if bearer != "" {
		header.Set("Authorization", bearer)
	}

	s.logger.Debug("dialing", "url", s.url)
	conn, err := s.dialer.Dial(ctx, s.url, header)
	if err != nil {
		s.dialFailed(gen, err)
		return
	}

	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conn = conn
	s.attempts = 0
	s.connectedAt = s.sched.Now()
	s.cancelDial = nil
	s.setStateLocked(StateConnected)
	s.notify.post(s.emitOpen)
	s.startHeartbeatLocked(gen)
	flush := s.claimFlushLocked()
	queued := s.queue.Len()
	s.mu.Unlock()

	s.logger.Info("connected", "queued", queued)
	s.notify.drain()
	if flush {
		s.flush()
	}

	s.readLoop(gen, conn)
}

func (s *Socket) dialFailed(gen uint64, err error) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.logger.Warn("dial failed", "error", err)
	terr := &TransportError{Op: "dial", Err: err}
	s.notify.post(func() { s.emitError(terr) })
	s.handleCloseLocked(CloseAbnormalClosure, err.Error())
	s.mu.Unlock()
	s.notify.drain()
}

// readLoop delivers inbound frames in arrival order until the connection ends.
func (s *Socket) readLoop(gen uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			code, reason, abnormal := closeInfo(err)
			s.mu.Lock()
			if s.closed || gen != s.gen || s.conn != conn {
				s.mu.Unlock()
				return
			}
			if abnormal {
				terr := &TransportError{Op: "read", Err: err}
				s.notify.post(func() { s.emitError(terr) })
			}
			s.handleCloseLocked(code, reason)
			s.mu.Unlock()
			s.notify.drain()
			return
		}

		frame, perr := ParseFrame(data)

		s.mu.Lock()
		if s.closed || gen != s.gen {
			s.mu.Unlock()
			return
		}
		if perr != nil {
			s.metrics.ParseFailed()
			s.notify.post(func() { s.emitError(perr) })
		} else {
			s.received++
			s.metrics.FrameReceived(string(frame.Type))
			s.notify.post(func() { s.emitMessage(frame) })
		}
		s.mu.Unlock()
		s.notify.drain()
	}
}

// handleCloseLocked reacts to the end of the current connection: a normal
// close leaves the socket disconnected, anything else schedules a retry or
// fails once the ceiling is reached.
func (s *Socket) handleCloseLocked(code int, reason string) {
	s.stopHeartbeatLocked()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.connectedAt = time.Time{}
	s.cancelDial = nil
	s.notify.post(func() { s.emitClose(code, reason) })

	if code == CloseNormalClosure {
		s.logger.Info("server closed connection normally", "reason", reason)
		s.setStateLocked(StateDisconnected)
		return
	}

	if s.attempts < s.cfg.MaxReconnectAttempts {
		delay := s.cfg.Backoff(s.attempts)
		s.attempts++
		s.setStateLocked(StateReconnecting)
		gen := s.gen
		s.reconnectTimer = s.sched.AfterFunc(delay, func() { s.fireReconnect(gen) })
		s.metrics.ReconnectScheduled()
		s.logger.Info("connection lost, reconnect scheduled",
			"code", code,
			"reason", reason,
			"attempt", s.attempts,
			"delay", delay)
		return
	}

	s.setStateLocked(StateFailed)
	failure := fmt.Errorf("%w after %d attempts", ErrReconnectExhausted, s.attempts)
	s.notify.post(func() { s.emitError(failure) })
	s.logger.Error("reconnect attempts exhausted", "attempts", s.attempts)
}

func (s *Socket) fireReconnect(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen || s.state != StateReconnecting {
		s.mu.Unlock()
		return
	}
	s.reconnectTimer = nil
	s.setStateLocked(StateConnecting)
	s.startConnectLocked()
	s.mu.Unlock()
	s.notify.drain()
}

// setStateLocked records a transition and queues the notification.
func (s *Socket) setStateLocked(st State) {
	if s.state == st {
		return
	}
	prev := s.state
	s.state = st
	s.metrics.StateChanged(st.String())
	s.logger.Debug("state change", "from", prev.String(), "to", st.String())
	s.notify.post(func() { s.emitState(st) })
}

// claimFlushLocked makes the caller the single flusher if there is work.
func (s *Socket) claimFlushLocked() bool {
	if s.flushing || s.conn == nil || s.queue.Len() == 0 {
		return false
	}
	s.flushing = true
	return true
}

// flush writes queued messages oldest first while connected. Exactly one
// goroutine flushes at a time, which keeps sends in FIFO order.
func (s *Socket) flush() {
	for {
		s.mu.Lock()
		if s.state != StateConnected || s.conn == nil || s.queue.Len() == 0 {
			s.flushing = false
			s.mu.Unlock()
			return
		}
		text, _ := s.queue.Pop()
		conn := s.conn
		s.mu.Unlock()

		err := s.writeChat(conn, text)

		s.mu.Lock()
		if err == nil {
			s.sent++
			s.metrics.MessageSent()
			s.mu.Unlock()
			continue
		}

		if !s.queue.PushFront(text) {
			s.dropped++
			s.metrics.QueueEvicted()
		}
		if conn != s.conn {
			// Connection was replaced mid-write; retry on the new one.
			s.mu.Unlock()
			continue
		}
		s.flushing = false
		terr := &TransportError{Op: "write", Err: err}
		s.notify.post(func() { s.emitError(terr) })
		s.mu.Unlock()

		s.logger.Warn("write failed, message requeued", "error", err)
		s.notify.drain()
		// The read loop observes the close and drives reconnection.
		_ = conn.Close()
		return
	}
}

func (s *Socket) startHeartbeatLocked(gen uint64) {
	s.stopHeartbeatLocked()
	if s.cfg.HeartbeatInterval <= 0 {
		return
	}
	s.stopHeartbeat = clock.Every(s.sched, s.cfg.HeartbeatInterval, func() { s.heartbeat(gen) })
}

func (s *Socket) stopHeartbeatLocked() {
	if s.stopHeartbeat != nil {
		s.stopHeartbeat()
		s.stopHeartbeat = nil
	}
}

func (s *Socket) heartbeat(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen || s.state != StateConnected || s.conn == nil {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.mu.Unlock()

	data, err := EncodePing()
	if err == nil {
		err = s.write(conn, data)
	}
	if err == nil {
		return
	}

	s.mu.Lock()
	if gen == s.gen && !s.closed {
		terr := &TransportError{Op: "heartbeat", Err: err}
		s.notify.post(func() { s.emitError(terr) })
	}
	s.mu.Unlock()
	s.notify.drain()
}

func (s *Socket) writeChat(conn Conn, text string) error {
	data, err := EncodeChat(text)
	if err != nil {
		return err
	}
	return s.write(conn, data)
}

func (s *Socket) write(conn Conn, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Socket) writeClose(conn Conn, code int, reason string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		s.logger.Debug("close frame not sent", "error", err)
	}
}
