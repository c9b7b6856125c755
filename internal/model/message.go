// Package model defines the data structures shared across the broker:
// chat messages, session snapshots, and the sentinel errors of the
// session lifecycle.
package model

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ToolUse carries the metadata of one tool invocation surfaced by a
// work unit.
type ToolUse struct {
	Name   string `json:"name"`
	Input  string `json:"input,omitempty"`
	Output string `json:"output,omitempty"`
}

// ChatMessage is one entry in a session's append-only message log.
// Streaming updates re-send the same ID with replaced content; once
// Final is set the entry never changes again.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ToolUse   *ToolUse  `json:"toolUse,omitempty"`
	Final     bool      `json:"final"`
}
