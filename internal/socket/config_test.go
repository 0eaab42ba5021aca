// ABOUTME: Tests for socket configuration defaults, backoff and endpoint URLs
// ABOUTME: Backoff is checked against min(base*2^n, max)

package socket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Backoff(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, MaxDelay: 30 * time.Second}

	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for attempt, w := range want {
		assert.Equal(t, w, cfg.Backoff(attempt), "attempt %d", attempt)
	}

	assert.Equal(t, 30*time.Second, cfg.Backoff(200), "large attempts must not overflow")
}

func TestConfig_BackoffOddMax(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, 4*time.Second, cfg.Backoff(2))
	assert.Equal(t, 5*time.Second, cfg.Backoff(3))
}

func TestConfig_WithDefaults(t *testing.T) {
	got := Config{}.withDefaults()
	assert.Equal(t, DefaultConfig(), got)

	custom := Config{
		BaseURL:              "wss://api.example.com/",
		MaxReconnectAttempts: -1,
		BaseDelay:            2 * time.Second,
		MaxDelay:             time.Second,
		HeartbeatInterval:    -1,
	}.withDefaults()
	assert.Equal(t, "wss://api.example.com", custom.BaseURL)
	assert.Equal(t, 0, custom.MaxReconnectAttempts)
	assert.Equal(t, 2*time.Second, custom.MaxDelay, "max is raised to base")
	assert.Equal(t, time.Duration(-1), custom.HeartbeatInterval)
}

func TestConfig_EndpointURL(t *testing.T) {
	tests := []struct {
		base  string
		topic string
		want  string
	}{
		{"ws://localhost:8000", "t1", "ws://localhost:8000/ws/learning-coach/t1"},
		{"http://localhost:8000/", "t1", "ws://localhost:8000/ws/learning-coach/t1"},
		{"https://api.example.com", "t1", "wss://api.example.com/ws/learning-coach/t1"},
		{"wss://api.example.com", "a b/c", "wss://api.example.com/ws/learning-coach/a%20b%2Fc"},
		{"", "t1", "ws://localhost:8000/ws/learning-coach/t1"},
	}
	for _, tt := range tests {
		cfg := Config{BaseURL: tt.base}
		assert.Equal(t, tt.want, cfg.EndpointURL(tt.topic), "base %q", tt.base)
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "reconnecting", StateReconnecting.String())
	assert.Equal(t, "failed", StateFailed.String())
}
