package models

import "time"

// Message represents an individual communication entry within the session transcript. It contains the
// participant's role, the text content, and the time when the message was created. The content of an
// assistant message grows while its response is being streamed.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time
}

// Role represents the role of a message participant.
type Role string

// Status is the streaming state of the session. It gates whether new input may be submitted.
type Status string

const (
	// RoleUser represents a message typed by the user.
	RoleUser Role = "user"
	// RoleAssistant represents a message produced by the language model.
	RoleAssistant Role = "assistant"

	// StatusIdle means no response is being generated and input is accepted.
	StatusIdle Status = "idle"
	// StatusStreaming means an assistant response is in progress.
	StatusStreaming Status = "streaming"
)
