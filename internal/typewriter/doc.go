// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package typewriter progressively reveals an already fetched response.
//
// An Engine owns the revealed text. Reveal schedules one callback per rune
// (or per chunk for very long text) through a Scheduler and returns a Handle.
// Only one reveal is active at a time; starting another cancels the first.
//
// # Schedule
//
//   - character mode: rune i is shown at delay * i / 5
//   - chunk mode (more than ChunkThreshold runes): chunk k is shown at
//     delay * 10 * sqrt(k), ChunkSize runes per chunk
//
// Every callback only ever grows the revealed prefix, so observers see a
// strictly increasing, order preserving prefix sequence ending at the full text.
//
// # Usage
//
//	eng := typewriter.New()
//	eng.Subscribe(func() { redraw(eng.Text()) })
//	h := eng.Reveal(text, 20*time.Millisecond)
//	...
//	eng.ShowAll() // cancel and show everything
package typewriter
