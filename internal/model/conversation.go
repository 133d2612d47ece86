// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"
)

// UntitledTitle is the title of a conversation that has no user message yet.
const UntitledTitle = "New Conversation"

// DefaultTitleLength is the number of runes of the first prompt used as title.
const DefaultTitleLength = 30

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is a titled, ordered log of messages. Display order is slice
// order, which is insertion order.
type Conversation struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	LastModified time.Time `json:"lastModified"`
	Messages     []Message `json:"messages"`
}

// NewConversation creates an empty, untitled conversation.
func NewConversation(at time.Time) Conversation {
	return Conversation{
		ID:           NewID(),
		Title:        UntitledTitle,
		LastModified: at,
		Messages:     []Message{},
	}
}

// IsUntitled reports whether the title still holds the sentinel value.
func (c Conversation) IsUntitled() bool {
	return c.Title == UntitledTitle
}

// Clone returns a deep copy that shares no backing arrays with c.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}

// WithMessage returns a copy of c with msg appended. The first user message
// on an untitled conversation derives the title; later messages never change it.
func (c Conversation) WithMessage(msg Message, titleLen int) Conversation {
	out := c.Clone()
	if msg.IsUser() && out.IsUntitled() && !out.hasUserMessage() {
		if title := DeriveTitle(msg.Content, titleLen); title != "" {
			out.Title = title
		}
	}
	out.Messages = append(out.Messages, msg)
	out.LastModified = msg.Timestamp
	return out
}

func (c Conversation) hasUserMessage() bool {
	for _, m := range c.Messages {
		if m.IsUser() {
			return true
		}
	}
	return false
}

// LastMessage returns the most recent message with the given role.
func (c Conversation) LastMessage(role Role) (Message, bool) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == role {
			return c.Messages[i], true
		}
	}
	return Message{}, false
}

// UserPrompts returns the content of every user message in order.
func (c Conversation) UserPrompts() []string {
	prompts := make([]string, 0, len(c.Messages)/2+1)
	for _, m := range c.Messages {
		if m.IsUser() {
			prompts = append(prompts, m.Content)
		}
	}
	return prompts
}

// MessageCount returns the number of messages in the log.
func (c Conversation) MessageCount() int {
	return len(c.Messages)
}

// =============================================================================
// TITLES
// =============================================================================

// DeriveTitle builds a title from the first n runes of prompt, trimmed, with
// an ellipsis when the prompt was cut.
func DeriveTitle(prompt string, n int) string {
	if n <= 0 {
		n = DefaultTitleLength
	}
	runes := []rune(prompt)
	if len(runes) <= n {
		return strings.TrimSpace(prompt)
	}
	return strings.TrimSpace(string(runes[:n])) + "..."
}
