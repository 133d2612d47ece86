// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation persistence for gemtalk.
//
// Persistence is a small key-value layout, the same one a browser client
// keeps in local storage:
//
//	conversations         JSON array of conversations, newest first
//	activeConversationId  id of the active conversation (absent when none)
//	schemaVersion         layout version, currently 1
//
// The KV interface has four backends: a single JSON file written atomically
// (default), a bbolt database, a SQLite database and an in-memory map.
//
// ConversationStore keeps the collection in memory and writes the whole
// collection after every mutation. Write failures are logged and reported
// through LastPersistError but never fail the mutation itself.
package storage
