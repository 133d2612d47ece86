// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import "sync"

// DefaultHistoryLimit is the window size in entries (10 user/model pairs).
const DefaultHistoryLimit = 20

// =============================================================================
// TURNS
// =============================================================================

// TurnRole is the speaker of a history entry.
type TurnRole string

const (
	TurnUser  TurnRole = "user"
	TurnModel TurnRole = "model"
)

// Turn is one entry of the rolling exchange history.
type Turn struct {
	Role TurnRole
	Text string
}

// =============================================================================
// HISTORY
// =============================================================================

// History is a bounded FIFO window of recent exchanges sent to the model for
// continuity. It is independent of the persisted conversation log.
type History struct {
	mu    sync.Mutex
	limit int
	turns []Turn
}

// NewHistory creates a window holding at most limit entries. An odd limit is
// rounded up so the window always starts with a user turn.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit%2 != 0 {
		limit++
	}
	return &History{limit: limit}
}

// Append records one exchange and drops the oldest entries beyond the limit.
func (h *History) Append(prompt, reply string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, Turn{Role: TurnUser, Text: prompt}, Turn{Role: TurnModel, Text: reply})
	if over := len(h.turns) - h.limit; over > 0 {
		kept := make([]Turn, h.limit)
		copy(kept, h.turns[over:])
		h.turns = kept
	}
}

// Snapshot returns a copy of the window, oldest first.
func (h *History) Snapshot() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Clone returns an independent window with the same limit and entries.
func (h *History) Clone() *History {
	h.mu.Lock()
	defer h.mu.Unlock()
	turns := make([]Turn, len(h.turns))
	copy(turns, h.turns)
	return &History{limit: h.limit, turns: turns}
}

// Clear empties the window.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// Limit returns the window size.
func (h *History) Limit() int {
	return h.limit
}
