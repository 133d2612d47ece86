// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for gemtalk.
//
// All colors are Lip Gloss AdaptiveColors, so they follow the terminal's
// light or dark background. Theme bundles the styles the chat UI and the
// plain REPL share.
//
// # Usage
//
//	theme := styles.NewTheme()
//	fmt.Println(theme.UserLabel.Render("You"))
package styles
