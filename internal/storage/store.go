// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/gemtalk/internal/model"
)

// Storage keys.
const (
	KeyConversations = "conversations"
	KeyActiveID      = "activeConversationId"
	KeySchemaVersion = "schemaVersion"
)

// SchemaVersion is the layout version written by this build.
const SchemaVersion = 1

// =============================================================================
// CONVERSATION STORE
// =============================================================================

// ConversationStore is the ordered collection of conversations plus the
// active conversation id. It is safe for concurrent use.
type ConversationStore struct {
	mu sync.Mutex

	kv       KV
	logger   zerolog.Logger
	titleLen int
	now      func() time.Time
	onCreate func(model.Conversation)
	onError  func(error)

	conversations  []model.Conversation
	activeID       string
	lastPersistErr error
}

// StoreOption configures a ConversationStore.
type StoreOption func(*ConversationStore)

// WithLogger sets the logger used for persistence failures.
func WithLogger(l zerolog.Logger) StoreOption {
	return func(s *ConversationStore) {
		s.logger = l
	}
}

// WithTitleLength sets how many runes of the first prompt become the title.
func WithTitleLength(n int) StoreOption {
	return func(s *ConversationStore) {
		if n > 0 {
			s.titleLen = n
		}
	}
}

// WithClock sets the time source for timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *ConversationStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithOnCreate registers a callback run, without the store lock, whenever a
// conversation is created, including implicit creation on delete or load.
func WithOnCreate(fn func(model.Conversation)) StoreOption {
	return func(s *ConversationStore) {
		s.onCreate = fn
	}
}

// WithPersistErrorHook registers a callback run on every failed write.
func WithPersistErrorHook(fn func(error)) StoreOption {
	return func(s *ConversationStore) {
		s.onError = fn
	}
}

// NewConversationStore rehydrates a store from kv. A missing or corrupt
// record never fails: the store falls back to the first stored conversation
// or to a fresh one.
func NewConversationStore(kv KV, opts ...StoreOption) *ConversationStore {
	s := &ConversationStore{
		kv:       kv,
		logger:   zerolog.Nop(),
		titleLen: model.DefaultTitleLength,
		now:      model.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mu.Lock()
	created, hasCreated := s.loadLocked()
	s.mu.Unlock()

	if hasCreated {
		s.notifyCreate(created)
	}
	return s
}

// =============================================================================
// LOAD / PERSIST
// =============================================================================

func (s *ConversationStore) loadLocked() (model.Conversation, bool) {
	if raw, ok, err := s.kv.Get(KeySchemaVersion); err == nil && ok {
		if v, err := strconv.Atoi(strings.TrimSpace(string(raw))); err != nil || v > SchemaVersion {
			s.logger.Warn().Str("version", string(raw)).Msg("unrecognised stored schema version; loading anyway")
		}
	}

	s.conversations = s.readConversations()

	activeID := ""
	if raw, ok, err := s.kv.Get(KeyActiveID); err != nil {
		s.logger.Warn().Err(err).Msg("failed to read active conversation id")
	} else if ok {
		activeID = string(raw)
	}

	switch {
	case s.indexLocked(activeID) >= 0:
		s.activeID = activeID
		return model.Conversation{}, false
	case len(s.conversations) > 0:
		s.activeID = s.conversations[0].ID
		s.persistLocked()
		return model.Conversation{}, false
	default:
		return s.createLocked(), true
	}
}

func (s *ConversationStore) readConversations() []model.Conversation {
	raw, ok, err := s.kv.Get(KeyConversations)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read conversations; starting empty")
		return []model.Conversation{}
	}
	if !ok || len(raw) == 0 {
		return []model.Conversation{}
	}

	var convs []model.Conversation
	if err := json.Unmarshal(raw, &convs); err != nil {
		s.logger.Warn().Err(err).Msg("corrupt conversations record; starting empty")
		return []model.Conversation{}
	}

	seen := make(map[string]bool, len(convs))
	out := make([]model.Conversation, 0, len(convs))
	for _, c := range convs {
		if c.ID == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if c.Messages == nil {
			c.Messages = []model.Message{}
		}
		if strings.TrimSpace(c.Title) == "" {
			c.Title = model.UntitledTitle
		}
		out = append(out, c)
	}
	return out
}

// persistLocked writes the whole collection. Failures are recorded, never returned.
func (s *ConversationStore) persistLocked() {
	data, err := json.Marshal(s.conversations)
	if err != nil {
		s.recordPersistErrorLocked(fmt.Errorf("encode conversations: %w", err))
		return
	}

	batch := map[string][]byte{
		KeyConversations: data,
		KeySchemaVersion: []byte(strconv.Itoa(SchemaVersion)),
		KeyActiveID:      nil,
	}
	if s.activeID != "" {
		batch[KeyActiveID] = []byte(s.activeID)
	}

	if err := s.kv.Write(batch); err != nil {
		s.recordPersistErrorLocked(err)
		return
	}
	s.lastPersistErr = nil
}

func (s *ConversationStore) recordPersistErrorLocked(err error) {
	s.lastPersistErr = err
	s.logger.Error().Err(err).Int("conversations", len(s.conversations)).Msg("failed to persist conversations; continuing in memory")
	if s.onError != nil {
		s.onError(err)
	}
}

// LastPersistError returns the error of the most recent write, or nil if it succeeded.
func (s *ConversationStore) LastPersistError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPersistErr
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Create prepends a new empty conversation and makes it active.
func (s *ConversationStore) Create() model.Conversation {
	s.mu.Lock()
	conv := s.createLocked()
	s.mu.Unlock()

	s.notifyCreate(conv)
	return conv.Clone()
}

func (s *ConversationStore) createLocked() model.Conversation {
	conv := model.NewConversation(s.now())
	s.conversations = append([]model.Conversation{conv}, s.conversations...)
	s.activeID = conv.ID
	s.persistLocked()
	return conv
}

func (s *ConversationStore) notifyCreate(conv model.Conversation) {
	if s.onCreate != nil {
		s.onCreate(conv.Clone())
	}
}

// Append adds msg to the end of the conversation's log. A zero timestamp is
// filled from the store clock.
func (s *ConversationStore) Append(id string, msg model.Message) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return model.Conversation{}, notFound(id)
	}
	if msg.ID == "" {
		msg.ID = model.NewID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	s.conversations[i] = s.conversations[i].WithMessage(msg, s.titleLen)
	s.persistLocked()
	return s.conversations[i].Clone(), nil
}

// Rename sets an explicit title.
func (s *ConversationStore) Rename(id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrInvalidTitle
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return notFound(id)
	}
	s.conversations[i].Title = title
	s.conversations[i].LastModified = s.now()
	s.persistLocked()
	return nil
}

// Delete removes a conversation. Deleting the active one activates the new
// first conversation, or a fresh one when none remain.
func (s *ConversationStore) Delete(id string) error {
	s.mu.Lock()

	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return notFound(id)
	}
	s.conversations = append(s.conversations[:i:i], s.conversations[i+1:]...)

	if s.activeID != id {
		s.persistLocked()
		s.mu.Unlock()
		return nil
	}

	if len(s.conversations) > 0 {
		s.activeID = s.conversations[0].ID
		s.persistLocked()
		s.mu.Unlock()
		return nil
	}

	conv := s.createLocked()
	s.mu.Unlock()
	s.notifyCreate(conv)
	return nil
}

// Select makes id the active conversation.
func (s *ConversationStore) Select(id string) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return model.Conversation{}, notFound(id)
	}
	if s.activeID != id {
		s.activeID = id
		s.persistLocked()
	}
	return s.conversations[i].Clone(), nil
}

// ClearAll wipes storage and starts over with one fresh conversation.
func (s *ConversationStore) ClearAll() model.Conversation {
	s.mu.Lock()
	s.conversations = []model.Conversation{}
	s.activeID = ""
	if err := s.kv.Write(map[string][]byte{
		KeyConversations: nil,
		KeyActiveID:      nil,
		KeySchemaVersion: nil,
	}); err != nil {
		s.recordPersistErrorLocked(err)
	}
	conv := s.createLocked()
	s.mu.Unlock()

	s.notifyCreate(conv)
	return conv.Clone()
}

// =============================================================================
// QUERIES
// =============================================================================

// List returns copies of all conversations in display order.
func (s *ConversationStore) List() []model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = c.Clone()
	}
	return out
}

// Get returns a copy of the conversation with id.
func (s *ConversationStore) Get(id string) (model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return model.Conversation{}, false
	}
	return s.conversations[i].Clone(), true
}

// Find resolves a full id or a unique id prefix.
func (s *ConversationStore) Find(ref string) (model.Conversation, error) {
	ref = strings.TrimSpace(ref)
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexLocked(ref); i >= 0 {
		return s.conversations[i].Clone(), nil
	}
	match := -1
	for i, c := range s.conversations {
		if ref != "" && strings.HasPrefix(c.ID, ref) {
			if match >= 0 {
				return model.Conversation{}, &ConversationError{Message: "ambiguous conversation id", ID: ref}
			}
			match = i
		}
	}
	if match < 0 {
		return model.Conversation{}, notFound(ref)
	}
	return s.conversations[match].Clone(), nil
}

// Active returns a copy of the active conversation.
func (s *ConversationStore) Active() (model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(s.activeID)
	if i < 0 {
		return model.Conversation{}, false
	}
	return s.conversations[i].Clone(), true
}

// ActiveID returns the id of the active conversation, or "".
func (s *ConversationStore) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Len returns the number of conversations.
func (s *ConversationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// Close closes the underlying storage.
func (s *ConversationStore) Close() error {
	return s.kv.Close()
}

func (s *ConversationStore) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return i
		}
	}
	return -1
}
