package model

import "time"

// SessionState represents the lifecycle state of a session.
type SessionState string

const (
	// SessionStateIdle means the session is ready to accept a turn.
	SessionStateIdle SessionState = "idle"

	// SessionStateBusy means a work unit invocation is in flight.
	SessionStateBusy SessionState = "busy"

	// SessionStateWaiting means the work unit is blocked on external
	// input. Reserved for adapters that can report it.
	SessionStateWaiting SessionState = "waiting"

	// SessionStateError means the last turn failed. The session stays
	// usable; the next Send clears the error.
	SessionStateError SessionState = "error"

	// SessionStateDisconnected is terminal. Set by Close, never left.
	SessionStateDisconnected SessionState = "disconnected"
)

// SessionSnapshot is an immutable copy of a session's externally visible
// state. Message entries are copied so callers can never corrupt the
// session's own log.
type SessionSnapshot struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Cwd       string        `json:"cwd"`
	State     SessionState  `json:"state"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt time.Time     `json:"createdAt"`
}

// SessionSummary is the per-session entry of a sessions_list reply.
type SessionSummary struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Cwd         string       `json:"cwd"`
	State       SessionState `json:"state"`
	Subscribers int          `json:"subscribers"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// CreateSessionRequest carries the options for creating a session.
type CreateSessionRequest struct {
	Name    string `json:"name"`
	Cwd     string `json:"cwd"`
	Context string `json:"context,omitempty"`
}
