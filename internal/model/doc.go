// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types shared by the store, the
// session controller and the presentation layers.
//
// # Key Types
//
//   - Conversation: titled, append-only log of messages
//   - Message: single immutable message with role, content and error flag
//   - Role: message role enumeration (user, assistant)
//   - ModelInfo: catalogue entry for a remote model
//
// # Usage
//
//	conv := model.NewConversation(model.Now())
//	conv = conv.WithMessage(model.NewMessage(model.RoleUser, "Hello!", model.Now()), 30)
//	fmt.Println(conv.Title) // "Hello!"
package model
