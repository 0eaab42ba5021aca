// ABOUTME: HTTP client for starting and continuing learning-coach sessions
// ABOUTME: Posts path and topic IDs with a bearer token and decodes the session history

package sessionapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brianfields/deeplearn-sub010/internal/auth"
	"github.com/brianfields/deeplearn-sub010/internal/conversation"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 4 << 20

	continuePath = "/api/v1/learning_coach/conversations/continue"
	startPath    = "/api/v1/learning_coach/conversations/start"
)

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenSource attaches a bearer token to every request.
func WithTokenSource(src auth.TokenSource) Option {
	return func(c *Client) { c.tokens = src }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client talks to the session endpoints under baseURL.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  auth.TokenSource
	logger  *slog.Logger
}

var _ conversation.SessionClient = (*Client)(nil)

// New creates a Client. baseURL is an http or https origin; ws and wss are
// mapped to them so a single server URL can be configured.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{baseURL: httpOrigin(baseURL)}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "sessionapi")
	return c
}

func httpOrigin(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	switch {
	case strings.HasPrefix(base, "ws://"):
		return "http://" + strings.TrimPrefix(base, "ws://")
	case strings.HasPrefix(base, "wss://"):
		return "https://" + strings.TrimPrefix(base, "wss://")
	}
	return base
}

type sessionRequest struct {
	PathID  string `json:"path_id"`
	TopicID string `json:"topic_id"`
}

// ContinueConversation resumes the server session for a path and topic.
func (c *Client) ContinueConversation(ctx context.Context, pathID, topicID string) (*conversation.Session, error) {
	return c.post(ctx, "continue conversation", continuePath, pathID, topicID)
}

// StartConversation opens a new server session for a path and topic.
func (c *Client) StartConversation(ctx context.Context, pathID, topicID string) (*conversation.Session, error) {
	return c.post(ctx, "start conversation", startPath, pathID, topicID)
}

func (c *Client) post(ctx context.Context, op, path, pathID, topicID string) (*conversation.Session, error) {
	body, err := json.Marshal(sessionRequest{PathID: pathID, TopicID: topicID})
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	bearer, err := auth.BearerHeader(ctx, c.tokens)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}

	c.logger.Debug("session request",
		"op", op,
		"path_id", pathID,
		"topic_id", topicID,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	var session conversation.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", op, err)
	}
	if session.PathID == "" {
		session.PathID = pathID
	}
	if session.TopicID == "" {
		session.TopicID = topicID
	}
	return &session, nil
}
