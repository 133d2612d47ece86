// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/gemtalk/internal/gateway"
	"github.com/jeranaias/gemtalk/internal/model"
	"github.com/jeranaias/gemtalk/internal/session"
)

// copyToClipboard is swapped out in tests.
var copyToClipboard = clipboard.WriteAll

// =============================================================================
// UPDATE
// =============================================================================

// Update handles Bubble Tea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case changedMsg:
		m.refresh()
		return m, waitForChange(m.ctx, m.ctrl.Changes())

	case outcomeMsg:
		m.handleOutcome(msg.outcome)
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.state.Loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.syncViewport()
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleOutcome(out session.Outcome) {
	switch out.State {
	case session.Succeeded:
		m.status = ""
	case session.Failed, session.Cancelled:
		if out.Err == nil || errors.Is(out.Err, session.ErrSuperseded) {
			return
		}
		m.status = out.Err.Error()
	}
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.ctrl.Cancel()
		m.cancel()
		return m, tea.Quit
	}

	switch m.mode {
	case modeRename:
		return m.updateRename(msg)
	case modeConfirmDelete, modeConfirmClear:
		return m.updateConfirm(msg)
	}

	if key.Matches(msg, m.keys.PageUp, m.keys.PageDown) {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.focus == focusList {
		return m.updateList(msg)
	}
	return m.updateInput(msg)
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		switch {
		case m.state.Loading:
			m.ctrl.Cancel()
		case m.state.Revealing:
			m.ctrl.ShowAll()
		default:
			m.status = ""
		}
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		prompt := m.input.Value()
		m.input.Reset()
		m.ctrl.SetDraft("")
		m.promptIndex = -1
		m.status = ""
		return m, tea.Batch(submitCmd(m.ctx, m.ctrl, prompt), m.spinner.Tick)

	case key.Matches(msg, m.keys.New):
		m.ctrl.NewConversation()
		m.status = "New conversation"
		m.refresh()
		m.cursor = m.activeIndex()
		return m, nil

	case key.Matches(msg, m.keys.Focus):
		m.focus = focusList
		m.input.Blur()
		m.cursor = m.activeIndex()
		return m, nil

	case key.Matches(msg, m.keys.PrevPrompt):
		m.recallPrompt()
		return m, nil

	case key.Matches(msg, m.keys.Copy):
		m.copyLastReply()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.ctrl.SetDraft(m.input.Value())
	return m, cmd
}

// recallPrompt cycles backwards through this conversation's prompts.
func (m *Model) recallPrompt() {
	prompts := m.state.PrevPrompts
	if len(prompts) == 0 {
		return
	}
	if m.promptIndex <= 0 || m.promptIndex > len(prompts) {
		m.promptIndex = len(prompts)
	}
	m.promptIndex--
	m.input.SetValue(prompts[m.promptIndex])
	m.ctrl.SetDraft(m.input.Value())
}

func (m *Model) copyLastReply() {
	reply, ok := m.state.Conversation.LastMessage(model.RoleAssistant)
	if !ok || reply.IsError {
		m.status = "No reply to copy"
		return
	}
	if err := copyToClipboard(reply.Content); err != nil {
		m.status = fmt.Sprintf("Copy failed: %v", err)
		return
	}
	m.status = "Reply copied"
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	conv, ok := m.selected()

	switch {
	case key.Matches(msg, m.keys.Focus, m.keys.Cancel):
		m.focus = focusInput
		return m, m.input.Focus()

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.convs)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Open):
		if !ok {
			return m, nil
		}
		if _, err := m.ctrl.Select(conv.ID); err != nil {
			m.status = err.Error()
		} else {
			m.status = ""
			m.promptIndex = -1
		}
		m.refresh()
		m.viewport.GotoBottom()
		m.focus = focusInput
		return m, m.input.Focus()

	case key.Matches(msg, m.keys.Rename):
		if !ok {
			return m, nil
		}
		m.mode = modeRename
		m.rename.SetValue(conv.Title)
		m.rename.CursorEnd()
		return m, m.rename.Focus()

	case key.Matches(msg, m.keys.Delete):
		if ok {
			m.mode = modeConfirmDelete
			m.status = fmt.Sprintf("Delete %q? (y/n)", conv.Title)
		}

	case key.Matches(msg, m.keys.ClearAll):
		m.mode = modeConfirmClear
		m.status = fmt.Sprintf("Delete all %d conversations? (y/n)", len(m.convs))
	}
	return m, nil
}

func (m Model) updateRename(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.mode = modeNormal
		m.rename.Blur()
		if conv, ok := m.selected(); ok {
			if err := m.ctrl.Rename(conv.ID, m.rename.Value()); err != nil {
				m.status = err.Error()
			} else {
				m.status = "Renamed"
			}
		}
		m.refresh()
		return m, nil

	case tea.KeyEsc:
		m.mode = modeNormal
		m.rename.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.rename, cmd = m.rename.Update(msg)
	return m, cmd
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	action := m.mode
	m.mode = modeNormal
	m.status = ""

	if !key.Matches(msg, m.keys.Confirm) {
		return m, nil
	}

	switch action {
	case modeConfirmDelete:
		conv, ok := m.selected()
		if !ok {
			return m, nil
		}
		if err := m.ctrl.Delete(conv.ID); err != nil {
			m.status = err.Error()
		} else {
			m.status = "Conversation deleted"
		}
	case modeConfirmClear:
		m.ctrl.ClearAll()
		m.status = "All conversations deleted"
	}
	m.refresh()
	m.cursor = m.activeIndex()
	return m, nil
}

// errorKind reports the classification shown in the header for the last failure.
func errorKind(st session.State) gateway.Kind {
	if st.LastError == nil {
		return ""
	}
	return st.LastError.Kind
}
