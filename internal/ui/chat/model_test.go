// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/gemtalk/internal/gateway"
	"github.com/jeranaias/gemtalk/internal/model"
	"github.com/jeranaias/gemtalk/internal/session"
	"github.com/jeranaias/gemtalk/internal/storage"
	"github.com/jeranaias/gemtalk/internal/typewriter"
	"github.com/jeranaias/gemtalk/internal/ui/styles"
)

type replyFunc func(ctx context.Context, history []gateway.Turn, prompt string) (string, error)

type tui struct {
	t     *testing.T
	m     Model
	sched *typewriter.ManualScheduler
}

func newTUI(t *testing.T, reply replyFunc) *tui {
	t.Helper()
	sched := typewriter.NewManualScheduler()
	store := storage.NewConversationStore(storage.NewMemoryKV())
	engine := typewriter.New(typewriter.WithScheduler(sched))
	ctrl := session.New(store, gateway.New(gateway.BackendFunc(reply)), engine)

	m := New(Options{
		Controller:    ctrl,
		Theme:         styles.NewTheme(),
		ModelName:     "gemini-test",
		PlainMarkdown: true,
	})
	t.Cleanup(m.Close)

	h := &tui{t: t, m: m, sched: sched}
	h.send(tea.WindowSizeMsg{Width: 120, Height: 40})
	return h
}

func constant(s string) replyFunc {
	return func(context.Context, []gateway.Turn, string) (string, error) { return s, nil }
}

// send feeds one message and returns the command it produced.
func (h *tui) send(msg tea.Msg) tea.Cmd {
	h.t.Helper()
	next, cmd := h.m.Update(msg)
	m, ok := next.(Model)
	require.True(h.t, ok)
	h.m = m
	return cmd
}

func (h *tui) typeText(s string) {
	h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func (h *tui) key(k tea.KeyType) tea.Cmd {
	return h.send(tea.KeyMsg{Type: k})
}

// sync applies a controller change notification.
func (h *tui) sync() {
	h.send(changedMsg{})
}

// findOutcome runs cmd and every command batched inside it, returning the
// settled Submit.
func findOutcome(t *testing.T, cmd tea.Cmd) session.Outcome {
	t.Helper()
	for _, msg := range collect(cmd) {
		if out, ok := msg.(outcomeMsg); ok {
			return out.outcome
		}
	}
	require.FailNow(t, "no outcome produced")
	return session.Outcome{}
}

func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collect(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmitRevealsReply(t *testing.T) {
	h := newTUI(t, constant("Hi there"))

	h.typeText("hello")
	assert.Equal(t, "hello", h.m.ctrl.State().Draft)

	cmd := h.key(tea.KeyEnter)
	assert.Empty(t, h.m.input.Value())

	out := findOutcome(t, cmd)
	require.Equal(t, session.Succeeded, out.State)
	h.send(outcomeMsg{outcome: out})

	h.sched.RunAll()
	h.sync()

	st := h.m.ctrl.State()
	require.Len(t, st.Conversation.Messages, 2)
	assert.Equal(t, "Hi there", st.RevealedText)
	assert.Empty(t, h.m.status)

	view := h.m.View()
	assert.Contains(t, view, "gemtalk")
	assert.Contains(t, view, "gemini-test")
	assert.Contains(t, view, "hello")
	assert.Contains(t, view, "Hi there")
}

func TestEmptySubmitShowsValidationMessage(t *testing.T) {
	h := newTUI(t, constant("unused"))

	out := findOutcome(t, h.key(tea.KeyEnter))
	assert.Equal(t, session.Failed, out.State)
	h.send(outcomeMsg{outcome: out})

	assert.Equal(t, gateway.MsgInvalidInput, h.m.status)
	assert.Empty(t, h.m.ctrl.State().Conversation.Messages)
}

func TestEscCancelsInFlightRequest(t *testing.T) {
	h := newTUI(t, func(ctx context.Context, _ []gateway.Turn, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	h.typeText("slow question")
	cmd := h.key(tea.KeyEnter)

	done := make(chan session.Outcome, 1)
	go func() { done <- findOutcome(t, cmd) }()

	require.Eventually(t, func() bool { return h.m.ctrl.State().Loading }, 2*time.Second, time.Millisecond)
	h.sync()
	require.True(t, h.m.state.Loading)
	assert.Contains(t, h.m.View(), session.ThinkingText)

	h.key(tea.KeyEsc)

	var out session.Outcome
	select {
	case out = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submit did not settle after cancel")
	}
	assert.Equal(t, session.Cancelled, out.State)

	h.send(outcomeMsg{outcome: out})
	assert.Equal(t, gateway.MsgCancelled, h.m.status)

	msgs := h.m.ctrl.State().Conversation.Messages
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].IsError)
}

func TestEscSkipsTypewriter(t *testing.T) {
	h := newTUI(t, constant("a long enough reply to reveal slowly"))

	h.typeText("go")
	h.send(outcomeMsg{outcome: findOutcome(t, h.key(tea.KeyEnter))})
	h.sync()
	require.True(t, h.m.state.Revealing)

	h.key(tea.KeyEsc)
	st := h.m.ctrl.State()
	assert.False(t, st.Revealing)
	assert.Equal(t, "a long enough reply to reveal slowly", st.RevealedText)
}

func TestFailureShowsErrorStatus(t *testing.T) {
	h := newTUI(t, func(context.Context, []gateway.Turn, string) (string, error) {
		return "", gateway.NewError(gateway.KindQuota, "", errors.New("429"))
	})

	h.typeText("hi")
	h.send(outcomeMsg{outcome: findOutcome(t, h.key(tea.KeyEnter))})

	assert.Equal(t, gateway.MsgQuota, h.m.status)
	assert.Contains(t, h.m.View(), "failed quota")
}

// =============================================================================
// INPUT HELPERS
// =============================================================================

func TestPrevPromptCycles(t *testing.T) {
	h := newTUI(t, constant("ok"))
	for _, p := range []string{"first", "second"} {
		h.typeText(p)
		h.send(outcomeMsg{outcome: findOutcome(t, h.key(tea.KeyEnter))})
	}
	h.sync()

	h.key(tea.KeyCtrlP)
	assert.Equal(t, "second", h.m.input.Value())
	h.key(tea.KeyCtrlP)
	assert.Equal(t, "first", h.m.input.Value())
	h.key(tea.KeyCtrlP)
	assert.Equal(t, "second", h.m.input.Value())
	assert.Equal(t, "second", h.m.ctrl.State().Draft)
}

func TestCopyLastReply(t *testing.T) {
	var copied string
	orig := copyToClipboard
	copyToClipboard = func(s string) error { copied = s; return nil }
	t.Cleanup(func() { copyToClipboard = orig })

	h := newTUI(t, constant("copy me"))
	h.key(tea.KeyCtrlY)
	assert.Equal(t, "No reply to copy", h.m.status)

	h.typeText("q")
	h.send(outcomeMsg{outcome: findOutcome(t, h.key(tea.KeyEnter))})
	h.key(tea.KeyCtrlY)
	assert.Equal(t, "copy me", copied)
	assert.Equal(t, "Reply copied", h.m.status)
}

// =============================================================================
// CONVERSATION LIST
// =============================================================================

func TestNewConversationKey(t *testing.T) {
	h := newTUI(t, constant("ok"))
	before := len(h.m.convs)
	oldActive := h.m.state.ActiveConversationID

	h.key(tea.KeyCtrlN)
	assert.Len(t, h.m.convs, before+1)
	assert.NotEqual(t, oldActive, h.m.state.ActiveConversationID)
	assert.Equal(t, "New conversation", h.m.status)
}

func TestRenameFromList(t *testing.T) {
	h := newTUI(t, constant("ok"))

	h.key(tea.KeyTab)
	require.Equal(t, focusList, h.m.focus)

	h.typeText("r")
	require.Equal(t, modeRename, h.m.mode)
	assert.Equal(t, model.UntitledTitle, h.m.rename.Value())

	h.key(tea.KeyCtrlU)
	h.typeText("Trip planning")
	h.key(tea.KeyEnter)

	assert.Equal(t, modeNormal, h.m.mode)
	assert.Equal(t, "Trip planning", h.m.ctrl.State().Conversation.Title)
	assert.Contains(t, h.m.View(), "Trip planning")
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	h := newTUI(t, constant("ok"))
	h.key(tea.KeyCtrlN)
	require.Len(t, h.m.convs, 2)

	h.key(tea.KeyTab)
	h.typeText("d")
	require.Equal(t, modeConfirmDelete, h.m.mode)
	h.typeText("n")
	assert.Len(t, h.m.convs, 2)

	h.typeText("d")
	h.typeText("y")
	assert.Len(t, h.m.convs, 1)
	assert.Equal(t, "Conversation deleted", h.m.status)
}

func TestClearAllFromList(t *testing.T) {
	h := newTUI(t, constant("ok"))
	h.typeText("hi")
	h.send(outcomeMsg{outcome: findOutcome(t, h.key(tea.KeyEnter))})
	h.key(tea.KeyCtrlN)

	h.key(tea.KeyTab)
	h.typeText("X")
	h.typeText("y")

	require.Len(t, h.m.convs, 1)
	assert.Empty(t, h.m.convs[0].Messages)
	assert.Equal(t, "All conversations deleted", h.m.status)
}

func TestSelectFromList(t *testing.T) {
	h := newTUI(t, constant("ok"))
	h.typeText("remember me")
	h.send(outcomeMsg{outcome: findOutcome(t, h.key(tea.KeyEnter))})
	first := h.m.state.ActiveConversationID

	h.key(tea.KeyCtrlN)
	require.NotEqual(t, first, h.m.state.ActiveConversationID)

	h.key(tea.KeyTab)
	for i, c := range h.m.convs {
		if c.ID == first {
			h.m.cursor = i
		}
	}
	h.key(tea.KeyEnter)

	assert.Equal(t, focusInput, h.m.focus)
	assert.Equal(t, first, h.m.state.ActiveConversationID)
	assert.Equal(t, "remember me", h.m.state.LastPrompt)
}

func TestQuitCancelsRequest(t *testing.T) {
	h := newTUI(t, constant("ok"))
	cmd := h.key(tea.KeyCtrlC)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Error(t, h.m.ctx.Err())
}
