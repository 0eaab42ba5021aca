// ABOUTME: Message, payload and error types shared by the conversation registry
// ABOUTME: Decodes progress, session state and protocol error frames from raw payloads

package conversation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConversationNotFound is returned for operations on an unknown key.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrEmptyMessage is returned when sending blank text.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrInvalidKey is returned when a path or topic ID is empty.
	ErrInvalidKey = errors.New("path and topic IDs are required")

	// ErrRegistryClosed is returned by StartConversation after Close.
	ErrRegistryClosed = errors.New("registry closed")
)

// Key returns the registry key for a path and topic.
func Key(pathID, topicID string) string {
	return pathID + "|" + topicID
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is one turn in a conversation.
type ChatMessage struct {
	ID           string         `json:"id"`
	Role         Role           `json:"role"`
	Content      string         `json:"content"`
	Timestamp    time.Time      `json:"timestamp"`
	QuickReplies []string       `json:"quick_replies,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Progress is a progress_update payload. Raw holds the payload as received.
type Progress struct {
	Stage   string  `json:"stage,omitempty"`
	Percent float64 `json:"percent,omitempty"`
	Message string  `json:"message,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// SessionState is a session_state payload. Raw holds the payload as received.
type SessionState struct {
	Status   string         `json:"status,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Session is what the history collaborator returns when a conversation is
// continued or started.
type Session struct {
	SessionID string         `json:"session_id"`
	PathID    string         `json:"path_id"`
	TopicID   string         `json:"topic_id"`
	Messages  []ChatMessage  `json:"messages"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ProtocolError is an error reported by the server in an error frame.
type ProtocolError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`

	Raw json.RawMessage `json:"-"`
}

func (e *ProtocolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server error %s: %s", e.Code, e.Message)
	}
	return "server error: " + e.Message
}

// decodeProtocolError accepts either an object or a bare string payload.
func decodeProtocolError(raw json.RawMessage) (*ProtocolError, error) {
	perr := &ProtocolError{Raw: raw}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		perr.Message = "unspecified"
		return perr, nil
	}
	if trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &perr.Message); err != nil {
			return nil, err
		}
		return perr, nil
	}
	if err := json.Unmarshal(trimmed, perr); err != nil {
		return nil, err
	}
	return perr, nil
}
