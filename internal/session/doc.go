// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session orchestrates one chat session.
//
// The Controller owns all session state: the active conversation (through
// the storage.ConversationStore), the rolling model history, the typewriter
// engine and the request lifecycle. Presentation layers call its methods and
// redraw from State whenever Changes fires.
//
// # Request Lifecycle
//
//	Idle -> Sending -> Succeeded | Failed | Cancelled
//
// At most one request is in flight. A new Submit finalizes the previous one
// as cancelled before appending its own prompt. Every request runs under a
// hard timeout (30s by default) and an explicit cancellation signal, and a
// result that arrives after either fired is discarded. Loading is cleared on
// every path.
//
// # Usage
//
//	ctrl := session.New(store, gw, engine)
//	go func() {
//	    for range ctrl.Changes() {
//	        redraw(ctrl.State())
//	    }
//	}()
//	out := ctrl.Submit(ctx, "Hello")
//	if out.Err != nil {
//	    fmt.Println(out.Err.Kind)
//	}
package session
