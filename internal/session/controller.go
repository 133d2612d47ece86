// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/gemtalk/internal/gateway"
	"github.com/jeranaias/gemtalk/internal/model"
	"github.com/jeranaias/gemtalk/internal/postprocess"
	"github.com/jeranaias/gemtalk/internal/storage"
	"github.com/jeranaias/gemtalk/internal/typewriter"
)

const (
	// DefaultTimeout is the hard ceiling for one request.
	DefaultTimeout = 30 * time.Second

	// ThinkingText is shown while a request is in flight.
	ThinkingText = "Thinking..."

	errorContentPrefix = "Error: "
	errorRevealPrefix  = "Sorry, there was an error: "
)

// Cancellation causes. Both match gateway.ErrCancelled.
var (
	ErrSuperseded = fmt.Errorf("%w: superseded by a newer request", gateway.ErrCancelled)
	ErrCancelled  = fmt.Errorf("%w: cancelled by user", gateway.ErrCancelled)
)

// Metrics receives one observation per settled request.
type Metrics interface {
	ObserveRequest(outcome, kind string, d time.Duration)
}

// RevealObserver is optionally implemented by a Metrics to count reveals.
type RevealObserver interface {
	RevealStarted(mode string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveRequest(string, string, time.Duration) {}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller drives the request lifecycle and owns the session state.
type Controller struct {
	mu sync.Mutex

	store   *storage.ConversationStore
	gw      *gateway.Gateway
	engine  *typewriter.Engine
	history *gateway.History
	logger  zerolog.Logger
	metrics Metrics

	timeout     time.Duration
	revealDelay time.Duration
	useHistory  bool

	draft         string
	showingResult bool
	lastPrompt    string
	lastError     *ErrorInfo
	phase         RequestState

	seq      uint64
	inflight *request

	changes chan struct{}
}

// request tracks one in-flight Submit.
type request struct {
	seq        uint64
	convID     string
	prompt     string
	useHistory bool
	started    time.Time
	cancel     context.CancelCauseFunc

	finished bool
	outcome  Outcome
}

// Option configures a Controller.
type Option func(*Controller)

// WithTimeout sets the per-request ceiling.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRevealDelay sets the typewriter per-unit delay.
func WithRevealDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.revealDelay = d
		}
	}
}

// WithHistory replaces the rolling history window.
func WithHistory(h *gateway.History) Option {
	return func(c *Controller) {
		if h != nil {
			c.history = h
		}
	}
}

// WithHistoryReplay controls whether the rolling history is sent along.
func WithHistoryReplay(enabled bool) Option {
	return func(c *Controller) {
		c.useHistory = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// New creates a Controller and loads the active conversation.
func New(store *storage.ConversationStore, gw *gateway.Gateway, engine *typewriter.Engine, opts ...Option) *Controller {
	c := &Controller{
		store:       store,
		gw:          gw,
		engine:      engine,
		history:     gateway.NewHistory(gateway.DefaultHistoryLimit),
		logger:      zerolog.Nop(),
		metrics:     nopMetrics{},
		timeout:     DefaultTimeout,
		revealDelay: typewriter.DefaultDelay,
		useHistory:  true,
		changes:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}

	engine.Subscribe(c.signal)

	c.mu.Lock()
	if conv, ok := store.Active(); ok {
		c.loadLocked(conv)
	}
	c.mu.Unlock()
	return c
}

// Changes fires after every state change. Notifications coalesce, so a
// reader should re-read State rather than count signals.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

func (c *Controller) signal() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// History returns the rolling window used for model continuity.
func (c *Controller) History() *gateway.History {
	return c.history
}

// Store returns the conversation store.
func (c *Controller) Store() *storage.ConversationStore {
	return c.store
}

// =============================================================================
// SUBMIT
// =============================================================================

type result struct {
	reply string
	err   error
}

// SubmitDraft submits the current input draft.
func (c *Controller) SubmitDraft(ctx context.Context) Outcome {
	c.mu.Lock()
	draft := c.draft
	c.mu.Unlock()
	return c.Submit(ctx, draft)
}

// Submit sends prompt and blocks until the request settles. A blank prompt
// fails with an invalid-input error without touching the store or the gateway.
// Otherwise the prompt is stored and sent as typed.
func (c *Controller) Submit(ctx context.Context, prompt string) Outcome {
	c.mu.Lock()
	if strings.TrimSpace(prompt) == "" {
		gerr := gateway.NewError(gateway.KindInvalidInput, "", nil)
		c.lastError = &ErrorInfo{Kind: gerr.Kind, Message: gerr.Msg}
		if c.inflight == nil {
			c.phase = Failed
		}
		c.mu.Unlock()
		c.signal()
		return Outcome{State: Failed, Err: gerr}
	}

	if prev := c.inflight; prev != nil {
		prev.cancel(ErrSuperseded)
		c.finishLocked(prev, result{err: gateway.NewError(gateway.KindCancelled, "", ErrSuperseded)}, true)
	}

	convID := c.store.ActiveID()
	if convID == "" {
		convID = c.activateLocked(c.store.Create())
	}
	if _, err := c.store.Append(convID, model.NewMessage(model.RoleUser, prompt, time.Time{})); err != nil {
		// The active conversation vanished underneath us; start a new one.
		c.logger.Warn().Err(err).Str("conversation", convID).Msg("active conversation missing; creating a new one")
		convID = c.activateLocked(c.store.Create())
		if _, err := c.store.Append(convID, model.NewMessage(model.RoleUser, prompt, time.Time{})); err != nil {
			c.logger.Error().Err(err).Msg("failed to append prompt")
		}
	}

	c.seq++
	reqCtx, cancel := context.WithCancelCause(ctx)
	reqCtx, cancelTimeout := context.WithTimeoutCause(reqCtx, c.timeout, gateway.ErrTimeout)
	req := &request{
		seq:        c.seq,
		convID:     convID,
		prompt:     prompt,
		useHistory: c.useHistory,
		started:    time.Now(),
		cancel:     cancel,
	}
	c.inflight = req
	c.phase = Sending
	c.lastError = nil
	c.lastPrompt = prompt
	c.showingResult = true
	c.engine.Set(ThinkingText)
	// The gateway works on a private window; the exchange joins the shared
	// one in finishLocked, and only if its conversation is still active.
	window := c.history.Clone()
	c.mu.Unlock()
	c.signal()

	c.logger.Debug().Uint64("seq", req.seq).Str("conversation", convID).Msg("request sent")

	done := make(chan result, 1)
	go func() {
		reply, err := c.gw.Run(reqCtx, prompt, window, req.useHistory)
		done <- result{reply: reply, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-reqCtx.Done():
		// The gateway may still be running; its late result is dropped.
		res = result{err: gateway.FromContext(reqCtx)}
	}
	cancelTimeout()
	cancel(nil)

	c.mu.Lock()
	out := c.finishLocked(req, res, false)
	c.mu.Unlock()
	c.signal()
	return out
}

// finishLocked settles req exactly once. A superseded request only records
// its error message; the UI fields belong to the request replacing it.
func (c *Controller) finishLocked(req *request, res result, superseded bool) Outcome {
	if req.finished {
		return req.outcome
	}
	req.finished = true
	if c.inflight == req {
		c.inflight = nil
	}

	out := Outcome{Seq: req.seq, ConversationID: req.convID}
	isActive := c.store.ActiveID() == req.convID

	if res.err == nil {
		processed := postprocess.Normalize(res.reply)
		if _, err := c.store.Append(req.convID, model.NewMessage(model.RoleAssistant, processed, time.Time{})); err != nil {
			c.logger.Warn().Err(err).Uint64("seq", req.seq).Msg("conversation gone before reply arrived")
		}
		out.State = Succeeded
		out.Reply = processed
		c.phase = Succeeded
		c.draft = ""
		if isActive {
			if req.useHistory {
				c.history.Append(req.prompt, res.reply)
			}
			h := c.engine.Reveal(processed, c.revealDelay)
			if ro, ok := c.metrics.(RevealObserver); ok {
				mode := "char"
				if h.Chunked() {
					mode = "chunk"
				}
				ro.RevealStarted(mode)
			}
		}
	} else {
		gerr := gateway.AsError(res.err)
		out.Err = gerr
		out.State = Failed
		if gerr.Kind == gateway.KindCancelled {
			out.State = Cancelled
		}

		if _, err := c.store.Append(req.convID, model.NewErrorMessage(errorContentPrefix+gerr.Msg, time.Time{})); err != nil && !errors.Is(err, storage.ErrConversationNotFound) {
			c.logger.Warn().Err(err).Msg("failed to append error message")
		}
		if !superseded {
			c.phase = out.State
			c.lastError = &ErrorInfo{Kind: gerr.Kind, Message: gerr.Msg}
			if isActive {
				c.engine.Set(errorRevealPrefix + gerr.Msg)
			}
		}
	}

	elapsed := time.Since(req.started)
	kind := ""
	if out.Err != nil {
		kind = string(out.Err.Kind)
	}
	c.metrics.ObserveRequest(out.State.String(), kind, elapsed)
	c.logger.Info().
		Uint64("seq", req.seq).
		Str("state", out.State.String()).
		Str("kind", kind).
		Dur("elapsed", elapsed).
		Msg("request finished")

	req.outcome = out
	return out
}

// Cancel aborts the in-flight request, if any. It reports whether one was running.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	req := c.inflight
	if req == nil {
		c.mu.Unlock()
		return false
	}
	req.cancel(ErrCancelled)
	c.finishLocked(req, result{err: gateway.NewError(gateway.KindCancelled, "", ErrCancelled)}, false)
	c.mu.Unlock()
	c.signal()
	return true
}

// ShowAll stops the typewriter and shows the full reply.
func (c *Controller) ShowAll() bool {
	return c.engine.ShowAll()
}

// SetDraft replaces the input draft.
func (c *Controller) SetDraft(s string) {
	c.mu.Lock()
	c.draft = s
	c.mu.Unlock()
	c.signal()
}

// SetRevealDelay changes the typewriter delay for future reveals.
func (c *Controller) SetRevealDelay(d time.Duration) {
	if d < 0 {
		return
	}
	c.mu.Lock()
	c.revealDelay = d
	c.mu.Unlock()
}

// =============================================================================
// CONVERSATION OPERATIONS
// =============================================================================

// NewConversation starts a fresh conversation and clears the rolling history.
func (c *Controller) NewConversation() model.Conversation {
	c.mu.Lock()
	conv := c.store.Create()
	c.activateLocked(conv)
	c.mu.Unlock()
	c.signal()
	return conv
}

// Select activates a conversation and shows its latest exchange.
func (c *Controller) Select(id string) (model.Conversation, error) {
	c.mu.Lock()
	conv, err := c.store.Select(id)
	if err == nil {
		c.activateLocked(conv)
	}
	c.mu.Unlock()
	if err == nil {
		c.signal()
	}
	return conv, err
}

// Rename sets an explicit conversation title.
func (c *Controller) Rename(id, title string) error {
	err := c.store.Rename(id, title)
	if err == nil {
		c.signal()
	}
	return err
}

// Delete removes a conversation, repointing the active one when needed.
func (c *Controller) Delete(id string) error {
	c.mu.Lock()
	wasActive := c.store.ActiveID() == id
	err := c.store.Delete(id)
	if err == nil && wasActive {
		if conv, ok := c.store.Active(); ok {
			c.activateLocked(conv)
		}
	}
	c.mu.Unlock()
	if err == nil {
		c.signal()
	}
	return err
}

// ClearAll cancels any request, wipes storage and starts over.
func (c *Controller) ClearAll() model.Conversation {
	c.mu.Lock()
	if req := c.inflight; req != nil {
		req.cancel(ErrCancelled)
		req.finished = true
		req.outcome = Outcome{
			Seq:            req.seq,
			ConversationID: req.convID,
			State:          Cancelled,
			Err:            gateway.NewError(gateway.KindCancelled, "", ErrCancelled),
		}
		c.inflight = nil
	}
	conv := c.store.ClearAll()
	c.activateLocked(conv)
	c.phase = Idle
	c.draft = ""
	c.mu.Unlock()
	c.signal()
	return conv
}

// activateLocked resets the view and the rolling history for conv.
func (c *Controller) activateLocked(conv model.Conversation) string {
	c.loadLocked(conv)
	return conv.ID
}

// loadLocked shows the latest exchange of conv and seeds the rolling history
// from its log, so continuity follows the conversation being viewed.
func (c *Controller) loadLocked(conv model.Conversation) {
	c.lastError = nil
	c.lastPrompt = ""
	c.showingResult = false
	revealed := ""

	if msg, ok := conv.LastMessage(model.RoleUser); ok {
		c.lastPrompt = msg.Content
		c.showingResult = true
	}
	if msg, ok := conv.LastMessage(model.RoleAssistant); ok {
		revealed = msg.Content
		c.showingResult = true
	}
	c.engine.Set(revealed)

	c.history.Clear()
	for _, ex := range exchanges(conv) {
		c.history.Append(ex[0], ex[1])
	}
}

// exchanges pairs each user message with the successful reply that follows it.
func exchanges(conv model.Conversation) [][2]string {
	var out [][2]string
	msgs := conv.Messages
	for i := 0; i+1 < len(msgs); i++ {
		if msgs[i].IsUser() && msgs[i+1].IsAssistant() && !msgs[i+1].IsError {
			out = append(out, [2]string{msgs[i].Content, msgs[i+1].Content})
			i++
		}
	}
	return out
}

// =============================================================================
// STATE
// =============================================================================

// State returns a snapshot of the session.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		ActiveConversationID: c.store.ActiveID(),
		Draft:                c.draft,
		Loading:              c.inflight != nil,
		ShowingResult:        c.showingResult,
		RevealedText:         c.engine.Text(),
		Revealing:            c.engine.Revealing(),
		LastPrompt:           c.lastPrompt,
		Request:              c.phase,
		RequestSeq:           c.seq,
	}
	if c.lastError != nil {
		e := *c.lastError
		st.LastError = &e
	}
	if conv, ok := c.store.Active(); ok {
		st.Conversation = conv
		st.PrevPrompts = conv.UserPrompts()
	}
	return st
}

// Conversations returns all conversations in display order.
func (c *Controller) Conversations() []model.Conversation {
	return c.store.List()
}
