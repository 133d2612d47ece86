// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"

	"github.com/jeranaias/gemtalk/internal/gateway"
	"github.com/jeranaias/gemtalk/internal/model"
)

// =============================================================================
// REQUEST STATE
// =============================================================================

// RequestState is the lifecycle phase of the most recent request.
type RequestState int

const (
	Idle RequestState = iota
	Sending
	Succeeded
	Failed
	Cancelled
)

// String returns the state name.
func (s RequestState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("RequestState(%d)", int(s))
	}
}

// Terminal reports whether s is a settled outcome.
func (s RequestState) Terminal() bool {
	return s == Succeeded || s == Failed || s == Cancelled
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// ErrorInfo is the machine-readable classification of the last failure.
type ErrorInfo struct {
	Kind    gateway.Kind
	Message string
}

// State is a point-in-time copy of the session.
type State struct {
	ActiveConversationID string
	Conversation         model.Conversation

	Draft         string
	Loading       bool
	ShowingResult bool
	RevealedText  string
	Revealing     bool

	LastPrompt  string
	PrevPrompts []string
	LastError   *ErrorInfo

	Request    RequestState
	RequestSeq uint64
}

// Outcome is the settled result of one Submit.
type Outcome struct {
	Seq            uint64
	ConversationID string
	State          RequestState
	Reply          string
	Err            *gateway.Error
}
