package ws

import (
	"github.com/agent-relay/backend/internal/model"
)

// FrameType represents the type of a WebSocket frame.
type FrameType string

const (
	// Client -> Server frame types
	FrameTypeCreateSession FrameType = "create_session"
	FrameTypeChat          FrameType = "chat"
	FrameTypeInterrupt     FrameType = "interrupt"
	FrameTypeSubscribe     FrameType = "subscribe"
	FrameTypeListSessions  FrameType = "list_sessions"
	FrameTypeCloseSession  FrameType = "close_session"
	FrameTypePing          FrameType = "ping"

	// Server -> Client frame types
	FrameTypeConnected      FrameType = "connected"
	FrameTypeSessionCreated FrameType = "session_created"
	FrameTypeSessionState   FrameType = "session_state"
	FrameTypeMessage        FrameType = "message"
	FrameTypeStateChanged   FrameType = "state_changed"
	FrameTypeError          FrameType = "error"
	FrameTypeSessionsList   FrameType = "sessions_list"
	FrameTypeSessionClosed  FrameType = "session_closed"
	FrameTypePong           FrameType = "pong"
)

// Frame is the wire envelope for every broker frame. Only the fields
// relevant to a given type are populated.
type Frame struct {
	Type      FrameType              `json:"type"`
	ClientID  string                 `json:"clientId,omitempty"`
	SessionID string                 `json:"sessionId,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Cwd       string                 `json:"cwd,omitempty"`
	Context   string                 `json:"context,omitempty"`
	Prompt    string                 `json:"prompt,omitempty"`
	Content   string                 `json:"content,omitempty"`
	State     model.SessionState     `json:"state,omitempty"`
	Message   *model.ChatMessage     `json:"message,omitempty"`
	Messages  []model.ChatMessage    `json:"messages,omitempty"`
	Sessions  []model.SessionSummary `json:"sessions,omitempty"`
	Error     string                 `json:"error,omitempty"`
}
