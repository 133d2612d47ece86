// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Gemini"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single entry in a conversation log. Messages are values and
// are never edited after they are appended; corrections are new messages.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsError   bool      `json:"isError"`
}

// NewMessage creates a message with a fresh ID.
func NewMessage(role Role, content string, at time.Time) Message {
	return Message{
		ID:        NewID(),
		Role:      role,
		Content:   content,
		Timestamp: at,
	}
}

// NewErrorMessage creates an assistant message flagged as an error.
func NewErrorMessage(content string, at time.Time) Message {
	msg := NewMessage(RoleAssistant, content, at)
	msg.IsError = true
	return msg
}

// IsUser reports whether the message was sent by the user.
func (m Message) IsUser() bool {
	return m.Role == RoleUser
}

// IsAssistant reports whether the message came from the model.
func (m Message) IsAssistant() bool {
	return m.Role == RoleAssistant
}

// =============================================================================
// HELPERS
// =============================================================================

// NewID returns an opaque unique identifier.
func NewID() string {
	return uuid.NewString()
}

// Now returns the current time normalised for persistence: UTC with
// millisecond precision, so a value survives a JSON round trip unchanged.
func Now() time.Time {
	return Normalize(time.Now())
}

// Normalize strips the monotonic reading and sub-millisecond precision.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
