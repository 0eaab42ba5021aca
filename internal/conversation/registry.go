// ABOUTME: Registry of active learning conversations keyed by path and topic
// ABOUTME: Idempotent start with history fallback, send, lookups, stats and idle cleanup

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/brianfields/deeplearn-sub010/internal/clock"
	"github.com/brianfields/deeplearn-sub010/internal/dedupe"
	"github.com/brianfields/deeplearn-sub010/internal/metrics"
	"github.com/brianfields/deeplearn-sub010/internal/socket"
)

// SessionClient fetches conversation history before a socket is opened.
type SessionClient interface {
	ContinueConversation(ctx context.Context, pathID, topicID string) (*Session, error)
	StartConversation(ctx context.Context, pathID, topicID string) (*Session, error)
}

// TransportFactory opens the transport for a topic. h must be subscribed
// before the transport emits anything.
type TransportFactory func(topicID string, h socket.Handlers) Transport

// Config controls registry housekeeping.
type Config struct {
	// MaxInactivity is how long a disconnected conversation may sit idle
	// before the sweep removes it.
	MaxInactivity time.Duration

	// CleanupInterval is the sweep period.
	CleanupInterval time.Duration

	// DedupeTTL and DedupeSize bound the per-conversation set of seen
	// message IDs.
	DedupeTTL  time.Duration
	DedupeSize int
}

// DefaultConfig returns the stock registry configuration.
func DefaultConfig() Config {
	return Config{
		MaxInactivity:   30 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		DedupeTTL:       dedupe.DefaultTTL,
		DedupeSize:      dedupe.DefaultMaxSize,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxInactivity <= 0 {
		c.MaxInactivity = def.MaxInactivity
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = def.CleanupInterval
	}
	if c.DedupeTTL <= 0 {
		c.DedupeTTL = def.DedupeTTL
	}
	if c.DedupeSize <= 0 {
		c.DedupeSize = def.DedupeSize
	}
	return c
}

// Option configures a Registry.
type Option func(*Registry)

// WithConfig sets the housekeeping configuration.
func WithConfig(cfg Config) Option {
	return func(r *Registry) { r.cfg = cfg }
}

// WithSocketConfig sets the configuration for sockets opened by the
// default transport factory.
func WithSocketConfig(cfg socket.Config) Option {
	return func(r *Registry) { r.socketCfg = cfg }
}

// WithSocketOptions appends options for sockets opened by the default
// transport factory.
func WithSocketOptions(opts ...socket.Option) Option {
	return func(r *Registry) { r.socketOpts = append(r.socketOpts, opts...) }
}

// WithTransportFactory replaces socket construction entirely.
func WithTransportFactory(f TransportFactory) Option {
	return func(r *Registry) { r.factory = f }
}

// WithScheduler sets the scheduler used for timestamps, the idle sweep and
// sockets opened by the default factory.
func WithScheduler(s clock.Scheduler) Option {
	return func(r *Registry) { r.sched = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics records registry and socket activity into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// StartRequest identifies the conversation to start and the caller's
// handlers.
type StartRequest struct {
	PathID   string
	TopicID  string
	Handlers Handlers
}

type pendingSub struct {
	h Handlers
}

// Registry owns the active conversations. Create one with NewRegistry and
// release it with Close.
type Registry struct {
	client     SessionClient
	cfg        Config
	socketCfg  socket.Config
	socketOpts []socket.Option
	factory    TransportFactory
	sched      clock.Scheduler
	logger     *slog.Logger
	metrics    *metrics.Metrics
	watchers   *broadcaster

	group singleflight.Group

	mu            sync.Mutex
	conversations map[string]*Conversation
	pending       map[string][]*pendingSub
	closed        bool
	stopSweep     func()
}

// NewRegistry creates a registry backed by client and starts the idle sweep.
func NewRegistry(client SessionClient, opts ...Option) *Registry {
	r := &Registry{
		client:        client,
		cfg:           DefaultConfig(),
		socketCfg:     socket.DefaultConfig(),
		conversations: make(map[string]*Conversation),
		pending:       make(map[string][]*pendingSub),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cfg = r.cfg.withDefaults()
	if r.sched == nil {
		r.sched = clock.Real()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "conversation")
	if r.factory == nil {
		r.factory = r.openSocket
	}
	r.watchers = newBroadcaster(r.logger)
	r.stopSweep = clock.Every(r.sched, r.cfg.CleanupInterval, r.sweepIdle)
	return r
}

func (r *Registry) openSocket(topicID string, h socket.Handlers) Transport {
	opts := slices.Concat(
		[]socket.Option{
			socket.WithScheduler(r.sched),
			socket.WithLogger(r.logger),
			socket.WithMetrics(r.metrics),
		},
		r.socketOpts,
		[]socket.Option{socket.WithHandlers(h)},
	)
	return socket.New(topicID, r.socketCfg, opts...)
}

// StartConversation returns the conversation for the request's key,
// creating it if needed. A new conversation first continues the server
// session, falling back to starting one, and then opens its socket.
// Concurrent calls for the same key share one creation and every caller's
// handlers are registered.
func (r *Registry) StartConversation(ctx context.Context, req StartRequest) (*Conversation, error) {
	if req.PathID == "" || req.TopicID == "" {
		return nil, ErrInvalidKey
	}
	key := Key(req.PathID, req.TopicID)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if conv, ok := r.conversations[key]; ok {
		r.mu.Unlock()
		conv.subscribe(req.Handlers)
		conv.touch()
		r.logger.Debug("reusing conversation", "conversation_key", key)
		return conv, nil
	}
	mine := &pendingSub{h: req.Handlers}
	r.pending[key] = append(r.pending[key], mine)
	r.mu.Unlock()

	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.create(ctx, req.PathID, req.TopicID, key)
	})
	if err != nil {
		r.mu.Lock()
		r.pending[key] = slices.DeleteFunc(r.pending[key], func(p *pendingSub) bool { return p == mine })
		if len(r.pending[key]) == 0 {
			delete(r.pending, key)
		}
		r.mu.Unlock()
		return nil, err
	}
	conv, _ := v.(*Conversation)
	return conv, nil
}

func (r *Registry) create(ctx context.Context, pathID, topicID, key string) (*Conversation, error) {
	// A caller that queued behind an earlier flight must not fetch again.
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if conv, ok := r.conversations[key]; ok {
		r.adoptPendingLocked(conv)
		r.mu.Unlock()
		return conv, nil
	}
	r.mu.Unlock()

	session, err := r.fetchSession(ctx, pathID, topicID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	if conv, ok := r.conversations[key]; ok {
		r.adoptPendingLocked(conv)
		return conv, nil
	}

	conv := newConversation(r, key, pathID, topicID, session)
	history := len(conv.messages)
	r.adoptPendingLocked(conv)
	conv.transport = r.factory(topicID, conv.socketHandlers())
	r.conversations[key] = conv
	r.metrics.SetActiveConversations(len(r.conversations))

	r.logger.Info("conversation started",
		"conversation_key", key,
		"session_id", conv.sessionID,
		"history", history)
	return conv, nil
}

func (r *Registry) adoptPendingLocked(conv *Conversation) {
	for _, p := range r.pending[conv.key] {
		conv.subscribe(p.h)
	}
	delete(r.pending, conv.key)
}

// fetchSession continues the server session and starts one if that fails.
func (r *Registry) fetchSession(ctx context.Context, pathID, topicID string) (*Session, error) {
	session, err := r.client.ContinueConversation(ctx, pathID, topicID)
	if err == nil {
		return session, nil
	}
	r.logger.Info("continue failed, starting new session",
		"path_id", pathID,
		"topic_id", topicID,
		"error", err)

	session, err = r.client.StartConversation(ctx, pathID, topicID)
	if err != nil {
		return nil, fmt.Errorf("starting session for %s: %w", Key(pathID, topicID), err)
	}
	return session, nil
}

// SendMessage appends a local echo of text to the conversation history and
// sends it. The socket queues the text while it is not connected.
func (r *Registry) SendMessage(pathID, topicID, text string) (ChatMessage, error) {
	conv, ok := r.GetConversation(pathID, topicID)
	if !ok {
		return ChatMessage{}, ErrConversationNotFound
	}
	if strings.TrimSpace(text) == "" {
		return ChatMessage{}, ErrEmptyMessage
	}
	return conv.send(uuid.New().String(), text), nil
}

// GetConversation looks up a conversation.
func (r *Registry) GetConversation(pathID, topicID string) (*Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.conversations[Key(pathID, topicID)]
	return conv, ok
}

// GetMessages returns a copy of the conversation history, or nil if the
// conversation does not exist.
func (r *Registry) GetMessages(pathID, topicID string) []ChatMessage {
	conv, ok := r.GetConversation(pathID, topicID)
	if !ok {
		return nil
	}
	return conv.Messages()
}

// GetConversationStats computes statistics for a conversation.
func (r *Registry) GetConversationStats(pathID, topicID string) (Stats, error) {
	conv, ok := r.GetConversation(pathID, topicID)
	if !ok {
		return Stats{}, ErrConversationNotFound
	}
	return conv.stats(r.sched.Now()), nil
}

// Subscribe adds handlers to an existing conversation.
func (r *Registry) Subscribe(pathID, topicID string, h Handlers) (unsubscribe func(), err error) {
	conv, ok := r.GetConversation(pathID, topicID)
	if !ok {
		return nil, ErrConversationNotFound
	}
	return conv.subscribe(h), nil
}

// Watch returns a channel of every event dispatched for the key. The
// channel is closed when cancel is called, ctx is done, or the
// conversation is closed.
func (r *Registry) Watch(ctx context.Context, pathID, topicID string) (events <-chan Event, cancel func()) {
	ctx, stop := context.WithCancel(ctx)
	ch, _ := r.watchers.subscribe(ctx, Key(pathID, topicID))
	return ch, stop
}

func (r *Registry) publish(ev Event) {
	ev.At = r.sched.Now()
	r.watchers.publish(ev)
}

// Reconnect asks the conversation's socket to reconnect now, resetting its
// attempt counter.
func (r *Registry) Reconnect(pathID, topicID string) error {
	conv, ok := r.GetConversation(pathID, topicID)
	if !ok {
		return ErrConversationNotFound
	}
	conv.touch()
	return conv.transport.Reconnect()
}

// CloseConversation closes the conversation's socket and removes it. It is
// a no-op for unknown keys.
func (r *Registry) CloseConversation(pathID, topicID string) {
	key := Key(pathID, topicID)

	r.mu.Lock()
	conv, ok := r.conversations[key]
	if ok {
		delete(r.conversations, key)
		r.metrics.SetActiveConversations(len(r.conversations))
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	conv.close("conversation closed")
	r.watchers.closeKey(key)
	r.logger.Info("conversation closed", "conversation_key", key)
}

// CloseAllConversations closes and removes every conversation. Safe to call
// repeatedly.
func (r *Registry) CloseAllConversations() {
	r.mu.Lock()
	convs := make([]*Conversation, 0, len(r.conversations))
	for _, conv := range r.conversations {
		convs = append(convs, conv)
	}
	clear(r.conversations)
	r.metrics.SetActiveConversations(0)
	r.mu.Unlock()

	for _, conv := range convs {
		conv.close("closing all conversations")
		r.watchers.closeKey(conv.key)
	}
	if len(convs) > 0 {
		r.logger.Info("closed all conversations", "count", len(convs))
	}
}

// ActiveCount returns the number of conversations.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conversations)
}

// Keys returns the keys of all conversations, sorted.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	keys := make([]string, 0, len(r.conversations))
	for k := range r.conversations {
		keys = append(keys, k)
	}
	r.mu.Unlock()
	slices.Sort(keys)
	return keys
}

// Close stops the idle sweep and closes every conversation. Later starts
// fail with ErrRegistryClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	stop := r.stopSweep
	r.stopSweep = nil
	r.mu.Unlock()

	if stop != nil {
		stop()
	}
	r.CloseAllConversations()
	r.watchers.close()
}
