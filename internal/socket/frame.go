// ABOUTME: Wire envelopes for the learning-coach socket protocol
// ABOUTME: Parses inbound typed frames and encodes outbound chat and ping frames

package socket

import (
	"bytes"
	"encoding/json"
	"errors"
)

// FrameType discriminates inbound frames.
type FrameType string

const (
	FrameChatMessage    FrameType = "chat_message"
	FrameProgressUpdate FrameType = "progress_update"
	FrameSessionState   FrameType = "session_state"
	FrameError          FrameType = "error"
	FramePong           FrameType = "pong"
)

// Frame is a parsed inbound envelope. Payload fields stay raw; the
// conversation layer decodes the one matching Type.
type Frame struct {
	Type     FrameType       `json:"type"`
	Message  json.RawMessage `json:"message,omitempty"`
	Progress json.RawMessage `json:"progress,omitempty"`
	State    json.RawMessage `json:"state,omitempty"`
	Error    json.RawMessage `json:"error,omitempty"`

	// Raw is the frame exactly as received.
	Raw []byte `json:"-"`
}

// outgoingChat is the outbound chat turn frame.
type outgoingChat struct {
	Message string `json:"message"`
}

// outgoingPing is the heartbeat frame.
type outgoingPing struct {
	Type string `json:"type"`
}

var errMissingType = errors.New("frame has no type")

// ParseFrame decodes one inbound frame. Malformed JSON or a missing type
// yields a *ParseError.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, &ParseError{Data: bytes.Clone(data), Err: err}
	}
	if f.Type == "" {
		return Frame{}, &ParseError{Data: bytes.Clone(data), Err: errMissingType}
	}
	f.Raw = bytes.Clone(data)
	return f, nil
}

// EncodeChat returns the outbound frame for a chat turn.
func EncodeChat(text string) ([]byte, error) {
	return json.Marshal(outgoingChat{Message: text})
}

// EncodePing returns the heartbeat frame.
func EncodePing() ([]byte, error) {
	return json.Marshal(outgoingPing{Type: "ping"})
}
