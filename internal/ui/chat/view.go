// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/gemtalk/internal/model"
	"github.com/jeranaias/gemtalk/internal/session"
	"github.com/jeranaias/gemtalk/internal/ui/styles"
)

// =============================================================================
// VIEW
// =============================================================================

// View renders the chat interface.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	body := m.viewport.View()
	if sw := m.sidebarWidth(); sw > 0 {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(sw, m.viewport.Height), body)
	} else if m.focus == focusList {
		body = m.renderSidebar(m.width-2, m.viewport.Height)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderInput(),
		m.renderStatusBar(),
	)
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	left := m.theme.HeaderTitle.Render("✦ gemtalk")
	if m.modelName != "" {
		left += "  " + m.theme.HeaderModel.Render(m.modelName)
	}

	var right string
	switch m.state.Request {
	case session.Sending:
		right = m.theme.Warning.Render("sending")
	case session.Failed:
		right = lipgloss.NewStyle().Foreground(styles.Rose).Render(strings.TrimSpace("failed " + string(errorKind(m.state))))
	case session.Cancelled:
		right = m.theme.Muted.Render("cancelled")
	case session.Succeeded:
		right = m.theme.Success.Render("ok")
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return m.theme.Header.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

// =============================================================================
// SIDEBAR
// =============================================================================

// markerWidth is the display width of the active-conversation marker.
const markerWidth = 2

func (m Model) renderSidebar(width, height int) string {
	now := time.Now()
	lines := []string{m.theme.HeaderTitle.Render("Conversations"), ""}

	// Keep the cursor visible when the list is taller than the pane.
	visible := height - len(lines)
	start := 0
	if visible > 0 && m.cursor >= visible {
		start = m.cursor - visible + 1
	}

	for i := start; i < len(m.convs) && len(lines) < height; i++ {
		conv := m.convs[i]
		marker := strings.Repeat(" ", markerWidth)
		if conv.ID == m.state.ActiveConversationID {
			marker = "● "
		}
		age := relativeTime(conv.LastModified, now)
		room := width - markerWidth - len(age)
		line := marker + padRight(truncate(conv.Title, room-1), room) + age

		switch {
		case m.focus == focusList && i == m.cursor:
			line = m.theme.SidebarSelected.Render(line)
		case conv.ID == m.state.ActiveConversationID:
			line = m.theme.SidebarActive.Render(line)
		default:
			line = m.theme.SidebarItem.Render(line)
		}
		lines = append(lines, line)
	}

	return m.theme.Sidebar.Width(width).Height(height).Render(strings.Join(lines, "\n"))
}

// =============================================================================
// MESSAGES
// =============================================================================

func (m *Model) renderMessages() string {
	msgs := m.state.Conversation.Messages
	width := m.viewport.Width - 2
	if width < 10 {
		width = 10
	}

	if len(msgs) == 0 && !m.state.Loading {
		return m.renderEmptyState(width)
	}

	var parts []string
	for i, msg := range msgs {
		parts = append(parts, m.renderMessage(msg, displayContent(m.state, i), i == len(msgs)-1, width))
	}

	if m.state.Loading {
		parts = append(parts, m.renderThinking())
	}
	return strings.Join(parts, "\n\n")
}

func (m *Model) renderMessage(msg model.Message, content string, isLast bool, width int) string {
	header := msg.Role.DisplayName()
	stamp := m.theme.Timestamp.Render(msg.Timestamp.Local().Format("15:04"))

	switch {
	case msg.IsUser():
		return m.theme.UserLabel.Render(header) + " " + stamp + "\n" +
			m.theme.UserBubble.Width(width).Render(content)

	case msg.IsError:
		return m.theme.AssistantLabel.Render(header) + " " + stamp + "\n" +
			m.theme.ErrorText.Width(width).Render(content)
	}

	var body string
	if isLast && m.state.Revealing || m.plain || m.renderer == nil {
		body = m.theme.AssistantBody.Width(width).Render(content)
	} else {
		body = m.theme.AssistantBody.Render(m.renderMarkdown(msg))
	}
	return m.theme.AssistantLabel.Render(header) + " " + stamp + "\n" + body
}

func (m Model) renderThinking() string {
	text := m.state.RevealedText
	if text == "" {
		text = session.ThinkingText
	}
	return m.theme.AssistantLabel.Render(model.RoleAssistant.DisplayName()) + "\n" +
		m.spinner.View() + " " + m.theme.ThinkingText.Render(text)
}

func (m Model) renderEmptyState(width int) string {
	lines := []string{
		m.theme.HeaderTitle.Render("What can I help with?"),
		"",
		m.theme.Muted.Render("Type a message and press Enter."),
		m.theme.Muted.Render("Tab opens your conversations, Ctrl+N starts a new one."),
	}
	return lipgloss.NewStyle().
		Width(width).
		Height(m.viewport.Height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(strings.Join(lines, "\n"))
}

// =============================================================================
// INPUT AND STATUS
// =============================================================================

func (m Model) renderInput() string {
	return m.theme.InputContainer.Width(m.width).Render(m.input.View())
}

func (m Model) renderStatusBar() string {
	var content string
	switch {
	case m.mode == modeRename:
		content = m.rename.View()
	case m.status != "":
		content = m.theme.Warning.Render(m.status)
	case m.state.Loading:
		content = m.spinner.View() + " " + m.theme.ThinkingText.Render(session.ThinkingText) +
			"  " + helpLine(m.theme, m.keys.Cancel)
	case m.state.Revealing:
		skip := m.keys.Cancel
		skip.SetHelp("Esc", "skip")
		content = helpLine(m.theme, skip)
	case m.focus == focusList:
		content = helpLine(m.theme, m.keys.ListHelp()...)
	default:
		content = helpLine(m.theme, m.keys.InputHelp()...)
	}
	return m.theme.StatusBar.Width(m.width).MaxHeight(1).Render(content)
}
