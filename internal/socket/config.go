// ABOUTME: Socket configuration with defaults and backoff calculation
// ABOUTME: Endpoint URL building converts http(s) base URLs to ws(s)

package socket

import (
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL              = "ws://localhost:8000"
	defaultMaxReconnectAttempts = 5
	defaultBaseDelay            = time.Second
	defaultMaxDelay             = 30 * time.Second
	defaultQueueCapacity        = 100
	defaultHeartbeatInterval    = 30 * time.Second

	// endpointPath is joined with the path-escaped topic ID.
	endpointPath = "/ws/learning-coach/"

	writeWait = 10 * time.Second
)

// Config controls how a Socket connects and retries.
type Config struct {
	// BaseURL is the server origin, e.g. wss://api.example.com. http and
	// https are accepted and mapped to ws and wss.
	BaseURL string

	// MaxReconnectAttempts is the number of automatic retries after
	// consecutive unexpected closes before the socket fails. Zero means the
	// default; negative disables automatic retries.
	MaxReconnectAttempts int

	// BaseDelay and MaxDelay bound the exponential backoff.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// QueueCapacity bounds the outbound queue.
	QueueCapacity int

	// HeartbeatInterval is the ping period while connected. Negative disables.
	HeartbeatInterval time.Duration
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:              defaultBaseURL,
		MaxReconnectAttempts: defaultMaxReconnectAttempts,
		BaseDelay:            defaultBaseDelay,
		MaxDelay:             defaultMaxDelay,
		QueueCapacity:        defaultQueueCapacity,
		HeartbeatInterval:    defaultHeartbeatInterval,
	}
}

func (c Config) withDefaults() Config {
	out := c
	out.BaseURL = strings.TrimRight(strings.TrimSpace(out.BaseURL), "/")
	if out.BaseURL == "" {
		out.BaseURL = defaultBaseURL
	}
	switch {
	case out.MaxReconnectAttempts == 0:
		out.MaxReconnectAttempts = defaultMaxReconnectAttempts
	case out.MaxReconnectAttempts < 0:
		out.MaxReconnectAttempts = 0
	}
	if out.BaseDelay <= 0 {
		out.BaseDelay = defaultBaseDelay
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = defaultMaxDelay
	}
	if out.MaxDelay < out.BaseDelay {
		out.MaxDelay = out.BaseDelay
	}
	if out.QueueCapacity <= 0 {
		out.QueueCapacity = defaultQueueCapacity
	}
	if out.HeartbeatInterval == 0 {
		out.HeartbeatInterval = defaultHeartbeatInterval
	}
	return out
}

// Backoff returns the delay before retry number attempt+1:
// min(BaseDelay * 2^attempt, MaxDelay).
func (c Config) Backoff(attempt int) time.Duration {
	d := c.BaseDelay
	for i := 0; i < attempt; i++ {
		if d > c.MaxDelay/2 {
			return c.MaxDelay
		}
		d *= 2
	}
	if d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

// EndpointURL returns the WebSocket URL for a topic.
func (c Config) EndpointURL(topicID string) string {
	base := c.withDefaults().BaseURL
	switch {
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	}
	return base + endpointPath + url.PathEscape(topicID)
}
