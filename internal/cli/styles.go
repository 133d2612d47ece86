// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/gemtalk/internal/ui/styles"
)

func init() {
	lipgloss.SetColorProfile(ColorProfile())
}

// =============================================================================
// CLI STYLES
// =============================================================================

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.Cyan)

	SectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.Purple)

	LabelStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary).
			Width(14)

	ValueStyle = lipgloss.NewStyle().
			Foreground(styles.TextPrimary)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.Rose)

	WarningStyle = lipgloss.NewStyle().
			Foreground(styles.Amber)

	MutedStyle = lipgloss.NewStyle().
			Foreground(styles.TextMuted)

	// REPL
	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.Cyan)

	assistantStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.Purple)

	commandStyle = lipgloss.NewStyle().
			Foreground(styles.Cyan)
)
