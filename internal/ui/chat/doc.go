// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat is the Bubble Tea interface for gemtalk.

The model owns no conversation state of its own. It renders snapshots of a
session.Controller and forwards key presses to it; every change the
controller makes (a reply arriving, a typewriter step, a persisted rename)
is picked up through Controller.Changes.

# Layout

	┌ header: app name, model, request state ─────────────────────┐
	│ conversations │ messages (viewport)                          │
	│               │                                              │
	├───────────────┴──────────────────────────────────────────────┤
	│ input (textarea)                                             │
	└ status bar: spinner or shortcuts ────────────────────────────┘

The conversation list is hidden on narrow terminals; Tab still moves focus
to it and the list is drawn over the messages instead.

# Keys

	Enter       send            Ctrl+J     newline
	Esc         stop request, or skip the typewriter
	Ctrl+N      new chat        Tab        focus conversations
	Ctrl+P      previous prompt Ctrl+Y     copy last reply
	Ctrl+C      quit

In the conversation list: Up/Down move, Enter opens, r renames, d deletes
(confirm with y), X clears everything (confirm with y).
*/
package chat
