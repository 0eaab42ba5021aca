// ABOUTME: Coloured terminal formatting for chat messages, states and errors
// ABOUTME: Colours can be disabled for pipes and tests

package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/brianfields/deeplearn-sub010/internal/conversation"
	"github.com/brianfields/deeplearn-sub010/internal/socket"
)

// Styler formats conversation output.
type Styler struct {
	user      *color.Color
	assistant *color.Color
	system    *color.Color
	dim       *color.Color
	warn      *color.Color
	bad       *color.Color
	good      *color.Color
}

// NewStyler returns a Styler. With colour disabled every method returns
// plain text.
func NewStyler(colour bool) *Styler {
	s := &Styler{
		user:      color.New(color.FgCyan, color.Bold),
		assistant: color.New(color.FgGreen, color.Bold),
		system:    color.New(color.FgMagenta),
		dim:       color.New(color.Faint),
		warn:      color.New(color.FgYellow),
		bad:       color.New(color.FgRed),
		good:      color.New(color.FgGreen),
	}
	for _, c := range []*color.Color{s.user, s.assistant, s.system, s.dim, s.warn, s.bad, s.good} {
		if colour {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return s
}

// Message formats a chat message with a role label. Assistant content is
// rendered from markdown and quick replies are listed underneath.
func (s *Styler) Message(m conversation.ChatMessage) string {
	var b strings.Builder
	switch m.Role {
	case conversation.RoleUser:
		b.WriteString(s.user.Sprint("you> "))
		b.WriteString(m.Content)
	case conversation.RoleSystem:
		b.WriteString(s.system.Sprint("system> "))
		b.WriteString(m.Content)
	default:
		b.WriteString(s.assistant.Sprint("tutor> "))
		b.WriteString(Markdown(m.Content))
	}

	if len(m.QuickReplies) > 0 {
		b.WriteString("\n")
		for i, r := range m.QuickReplies {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(s.dim.Sprintf("[%d] %s", i+1, r))
		}
	}
	return b.String()
}

// State formats a connection state.
func (s *Styler) State(st socket.State) string {
	label := "[" + st.String() + "]"
	switch st {
	case socket.StateConnected:
		return s.good.Sprint(label)
	case socket.StateConnecting, socket.StateReconnecting:
		return s.warn.Sprint(label)
	case socket.StateFailed:
		return s.bad.Sprint(label + " use /retry to reconnect")
	default:
		return s.dim.Sprint(label)
	}
}

// Progress formats a progress update.
func (s *Styler) Progress(p conversation.Progress) string {
	parts := make([]string, 0, 3)
	if p.Stage != "" {
		parts = append(parts, p.Stage)
	}
	if p.Percent > 0 {
		parts = append(parts, fmt.Sprintf("%.0f%%", p.Percent))
	}
	if p.Message != "" {
		parts = append(parts, p.Message)
	}
	if len(parts) == 0 {
		parts = append(parts, string(p.Raw))
	}
	return s.dim.Sprint("progress: " + strings.Join(parts, " · "))
}

// Error formats an error.
func (s *Styler) Error(err error) string {
	return s.bad.Sprint("error: " + err.Error())
}

// Stats formats conversation statistics.
func (s *Styler) Stats(st conversation.Stats) string {
	lines := []string{
		fmt.Sprintf("conversation   %s", st.Key),
		fmt.Sprintf("state          %s", st.Transport.State),
		fmt.Sprintf("messages       %d (you %d, tutor %d)", st.TotalMessages, st.UserMessages, st.AssistantMessages),
		fmt.Sprintf("session        %s", st.SessionDuration.Round(time.Second)),
		fmt.Sprintf("uptime         %s", st.ConnectionUptime.Round(time.Second)),
		fmt.Sprintf("queued         %d", st.Transport.QueueLength),
		fmt.Sprintf("sent/received  %d/%d", st.Transport.Sent, st.Transport.Received),
		fmt.Sprintf("dropped        %d", st.Transport.Dropped),
	}
	return s.dim.Sprint(strings.Join(lines, "\n"))
}
