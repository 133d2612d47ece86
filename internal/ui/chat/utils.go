// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/gemtalk/internal/session"
	"github.com/jeranaias/gemtalk/internal/ui/styles"
)

// =============================================================================
// CONTENT
// =============================================================================

// displayContent returns what message i should show right now. The reply
// being revealed shows the typewriter prefix instead of its full content.
func displayContent(st session.State, i int) string {
	msgs := st.Conversation.Messages
	msg := msgs[i]
	if i == len(msgs)-1 && !msg.IsUser() && st.Revealing && !st.Loading {
		return st.RevealedText
	}
	return msg.Content
}

// =============================================================================
// TEXT UTILITIES
// =============================================================================

// truncate shortens s to width display cells, ending with an ellipsis.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = strings.Join(strings.Fields(s), " ")
	return runewidth.Truncate(s, width, "…")
}

// padRight pads s with spaces to width display cells.
func padRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// trimBlankLines drops the leading and trailing empty lines glamour adds.
func trimBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}

// relativeTime renders a compact age for the conversation list.
//   - under a minute: "now"
//   - under an hour: "5m"
//   - under a day: "3h"
//   - under a week: "Mon"
//   - older: "Jan 2"
func relativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return strconv.Itoa(int(d/time.Minute)) + "m"
	case d < 24*time.Hour:
		return strconv.Itoa(int(d/time.Hour)) + "h"
	case d < 7*24*time.Hour:
		return t.Local().Format("Mon")
	default:
		return t.Local().Format("Jan 2")
	}
}

// helpLine renders bindings as "key desc · key desc".
func helpLine(theme *styles.Theme, bindings ...key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		if h.Key == "" {
			continue
		}
		parts = append(parts, theme.ShortcutKey.Render(h.Key)+" "+theme.ShortcutDesc.Render(h.Desc))
	}
	return strings.Join(parts, theme.ShortcutDesc.Render(" · "))
}
