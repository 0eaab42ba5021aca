// ABOUTME: Fake learning-coach backend speaking the socket and session protocols
// ABOUTME: Echoes learner messages with progress updates; supports drops, closes and replays

package fakebackend

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/brianfields/deeplearn-sub010/internal/auth"
	"github.com/brianfields/deeplearn-sub010/internal/conversation"
)

const writeWait = 5 * time.Second

// Option configures a Server.
type Option func(*Server)

// WithVerifier requires a valid bearer token on every request.
func WithVerifier(v auth.TokenVerifier) Option {
	return func(s *Server) { s.verifier = v }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithReplayLast makes the server resend the topic's last assistant message
// whenever a socket connects, as a backend does after a restart.
func WithReplayLast(on bool) Option {
	return func(s *Server) { s.replayLast = on }
}

// WithGreeting sets the assistant message that opens a new session.
func WithGreeting(text string) Option {
	return func(s *Server) { s.greeting = text }
}

type peer struct {
	topicID string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (p *peer) writeJSON(v any) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteJSON(v)
}

// Server is the fake backend. Mount Handler on an http.Server or httptest
// server.
type Server struct {
	verifier   auth.TokenVerifier
	logger     *slog.Logger
	replayLast bool
	greeting   string
	upgrader   websocket.Upgrader
	handler    http.Handler

	mu       sync.Mutex
	sessions map[string]*conversation.Session // by topic ID
	peers    map[*peer]struct{}
	received map[string][]string // learner turns by topic ID
	learners map[string]string   // learner ID by topic ID, when auth is on
}

// New creates a Server.
func New(opts ...Option) *Server {
	s := &Server{
		greeting: "Hi! I'm your learning coach. What would you like to explore?",
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: make(map[string]*conversation.Session),
		peers:    make(map[*peer]struct{}),
		received: make(map[string][]string),
		learners: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "fakebackend")

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/learning_coach/conversations/continue", s.handleContinue)
	mux.HandleFunc("POST /api/v1/learning_coach/conversations/start", s.handleStart)
	mux.HandleFunc("GET /ws/learning-coach/{topicID}", s.handleSocket)

	s.handler = mux
	if s.verifier != nil {
		s.handler = auth.Middleware(s.verifier)(mux)
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

type sessionRequest struct {
	PathID  string `json:"path_id"`
	TopicID string `json:"topic_id"`
}

func decodeSessionRequest(w http.ResponseWriter, r *http.Request) (sessionRequest, bool) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PathID == "" || req.TopicID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "path_id and topic_id are required"})
		return req, false
	}
	return req, true
}

func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSessionRequest(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	session, exists := s.sessions[req.TopicID]
	var out conversation.Session
	if exists {
		out = cloneSession(session)
	}
	s.mu.Unlock()

	if !exists {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "no conversation for topic"})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSessionRequest(w, r)
	if !ok {
		return
	}

	session := &conversation.Session{
		SessionID: uuid.New().String(),
		PathID:    req.PathID,
		TopicID:   req.TopicID,
		Messages: []conversation.ChatMessage{{
			ID:        uuid.New().String(),
			Role:      conversation.RoleAssistant,
			Content:   s.greeting,
			Timestamp: time.Now().UTC(),
		}},
		Metadata: map[string]any{"learner_id": auth.LearnerFromContext(r.Context())},
	}

	s.mu.Lock()
	s.sessions[req.TopicID] = session
	out := cloneSession(session)
	s.mu.Unlock()

	s.logger.Info("session started", "path_id", req.PathID, "topic_id", req.TopicID, "session_id", session.SessionID)
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	topicID := r.PathValue("topicID")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err)
		return
	}

	p := &peer{topicID: topicID, conn: conn}
	s.mu.Lock()
	s.peers[p] = struct{}{}
	if learner := auth.LearnerFromContext(r.Context()); learner != "" {
		s.learners[topicID] = learner
	}
	replay, hasReplay := s.lastAssistantLocked(topicID)
	s.mu.Unlock()

	s.logger.Debug("socket connected", "topic_id", topicID)

	_ = p.writeJSON(map[string]any{
		"type":  "session_state",
		"state": map[string]any{"status": "active", "topic_id": topicID},
	})
	if s.replayLast && hasReplay {
		_ = p.writeJSON(map[string]any{"type": "chat_message", "message": replay})
	}

	s.readLoop(p)
}

func (s *Server) readLoop(p *peer) {
	defer func() {
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
		_ = p.conn.Close()
		s.logger.Debug("socket disconnected", "topic_id", p.topicID)
	}()

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}

		var in struct {
			Type    string  `json:"type"`
			Message *string `json:"message"`
		}
		if err := json.Unmarshal(data, &in); err != nil {
			_ = p.writeJSON(map[string]any{
				"type":  "error",
				"error": map[string]any{"code": "bad_frame", "message": err.Error()},
			})
			continue
		}

		switch {
		case in.Type == "ping":
			_ = p.writeJSON(map[string]any{"type": "pong"})
		case in.Message != nil:
			s.reply(p, *in.Message)
		default:
			_ = p.writeJSON(map[string]any{
				"type":  "error",
				"error": map[string]any{"code": "unknown_frame", "message": "expected message or ping"},
			})
		}
	}
}

func (s *Server) reply(p *peer, text string) {
	now := time.Now().UTC()
	answer := conversation.ChatMessage{
		ID:           uuid.New().String(),
		Role:         conversation.RoleAssistant,
		Content:      echoReply(text),
		Timestamp:    now,
		QuickReplies: []string{"Continue", "Explain more"},
	}

	s.mu.Lock()
	s.received[p.topicID] = append(s.received[p.topicID], text)
	session := s.sessionLocked(p.topicID)
	session.Messages = append(session.Messages,
		conversation.ChatMessage{ID: uuid.New().String(), Role: conversation.RoleUser, Content: text, Timestamp: now},
		answer)
	turns := len(s.received[p.topicID])
	s.mu.Unlock()

	_ = p.writeJSON(map[string]any{
		"type":     "progress_update",
		"progress": map[string]any{"stage": "thinking", "percent": min(100, turns*10)},
	})
	_ = p.writeJSON(map[string]any{"type": "chat_message", "message": answer})
}

// sessionLocked returns the topic's session, creating one for sockets opened
// without the session endpoints.
func (s *Server) sessionLocked(topicID string) *conversation.Session {
	session, ok := s.sessions[topicID]
	if !ok {
		session = &conversation.Session{SessionID: uuid.New().String(), TopicID: topicID}
		s.sessions[topicID] = session
	}
	return session
}

func (s *Server) lastAssistantLocked(topicID string) (conversation.ChatMessage, bool) {
	session, ok := s.sessions[topicID]
	if !ok {
		return conversation.ChatMessage{}, false
	}
	for i := len(session.Messages) - 1; i >= 0; i-- {
		if session.Messages[i].Role == conversation.RoleAssistant {
			return session.Messages[i], true
		}
	}
	return conversation.ChatMessage{}, false
}

// Push sends frame to every socket connected for topicID and returns how
// many received it.
func (s *Server) Push(topicID string, frame any) int {
	n := 0
	for _, p := range s.peersFor(topicID) {
		if err := p.writeJSON(frame); err == nil {
			n++
		}
	}
	return n
}

// DropAll closes every socket without a close frame, as a network failure
// would. It returns the number of sockets dropped.
func (s *Server) DropAll() int {
	peers := s.peersFor("")
	for _, p := range peers {
		_ = p.conn.Close()
	}
	s.logger.Info("dropped connections", "count", len(peers))
	return len(peers)
}

// CloseAll sends a close frame with code and reason to every socket.
func (s *Server) CloseAll(code int, reason string) int {
	peers := s.peersFor("")
	msg := websocket.FormatCloseMessage(code, reason)
	for _, p := range peers {
		p.writeMu.Lock()
		_ = p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		p.writeMu.Unlock()
	}
	return len(peers)
}

// Connections returns the number of open sockets.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Received returns the learner turns received for topicID, in order.
func (s *Server) Received(topicID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.received[topicID])
}

// Learner returns the learner ID that last connected to topicID.
func (s *Server) Learner(topicID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.learners[topicID]
}

func (s *Server) peersFor(topicID string) []*peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		if topicID == "" || p.topicID == topicID {
			out = append(out, p)
		}
	}
	return out
}

func cloneSession(in *conversation.Session) conversation.Session {
	out := *in
	out.Messages = slices.Clone(in.Messages)
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func echoReply(input string) string {
	lower := strings.ToLower(input)
	if strings.Contains(lower, "list") || strings.Contains(lower, "steps") {
		return "Here is how to approach it:\n\n1. Read the problem\n2. Try a small example\n3. Check your answer with `a/b * b = a`"
	}
	return fmt.Sprintf("You said: **%s**\n\nTell me more about what you're thinking.", input)
}
