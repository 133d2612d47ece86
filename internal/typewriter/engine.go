// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package typewriter

import (
	"math"
	"sync"
	"time"
	"unicode/utf8"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultDelay is the per-unit reveal delay.
	DefaultDelay = 20 * time.Millisecond

	// DefaultChunkThreshold is the rune count above which text is revealed in chunks.
	DefaultChunkThreshold = 5000

	// DefaultChunkSize is the number of runes per chunk in chunk mode.
	DefaultChunkSize = 500

	// charCompression divides the per-rune offset in character mode.
	charCompression = 5

	// chunkSpacing scales the per-chunk delay in chunk mode.
	chunkSpacing = 10
)

// =============================================================================
// PLAN
// =============================================================================

// Step is one scheduled reveal: after After, the first End bytes are shown.
type Step struct {
	After time.Duration
	End   int
}

// Plan computes the reveal schedule for text.
func Plan(text string, perUnit time.Duration, chunkThreshold, chunkSize int) []Step {
	if text == "" {
		return nil
	}
	if perUnit < 0 {
		perUnit = 0
	}
	if chunkThreshold <= 0 {
		chunkThreshold = DefaultChunkThreshold
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	// Byte offset after every rune.
	ends := make([]int, 0, len(text))
	for i := range text {
		if i > 0 {
			ends = append(ends, i)
		}
	}
	ends = append(ends, len(text))
	n := len(ends)

	if n > chunkThreshold {
		steps := make([]Step, 0, (n+chunkSize-1)/chunkSize)
		for k := 0; k*chunkSize < n; k++ {
			last := (k+1)*chunkSize - 1
			if last >= n {
				last = n - 1
			}
			after := time.Duration(float64(perUnit) * chunkSpacing * math.Sqrt(float64(k)))
			steps = append(steps, Step{After: after, End: ends[last]})
		}
		return steps
	}

	steps := make([]Step, n)
	for i := 0; i < n; i++ {
		steps[i] = Step{
			After: time.Duration(int64(perUnit) * int64(i) / charCompression),
			End:   ends[i],
		}
	}
	return steps
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine owns the revealed text and at most one active reveal.
type Engine struct {
	mu             sync.Mutex
	sched          Scheduler
	chunkThreshold int
	chunkSize      int

	text      string
	gen       uint64
	active    *Handle
	listeners []func()
}

// Option configures an Engine.
type Option func(*Engine)

// WithScheduler sets the scheduler used for reveal callbacks.
func WithScheduler(s Scheduler) Option {
	return func(e *Engine) {
		if s != nil {
			e.sched = s
		}
	}
}

// WithChunking overrides the chunk threshold and chunk size.
func WithChunking(threshold, size int) Option {
	return func(e *Engine) {
		if threshold > 0 {
			e.chunkThreshold = threshold
		}
		if size > 0 {
			e.chunkSize = size
		}
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		sched:          RealScheduler,
		chunkThreshold: DefaultChunkThreshold,
		chunkSize:      DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe registers fn to be called after every change of the revealed
// text. fn runs without engine locks held and must not block.
func (e *Engine) Subscribe(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Text returns the currently revealed text.
func (e *Engine) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text
}

// Revealing reports whether a reveal is in progress.
func (e *Engine) Revealing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil
}

// Reveal cancels any active reveal, resets the revealed text to empty and
// schedules the reveal of text.
func (e *Engine) Reveal(text string, perUnit time.Duration) *Handle {
	e.mu.Lock()
	e.stopActiveLocked()
	e.gen++
	e.text = ""

	h := &Handle{
		engine:  e,
		gen:     e.gen,
		full:    text,
		chunked: utf8.RuneCountInString(text) > e.chunkThreshold,
		done:    make(chan struct{}),
	}

	steps := Plan(text, perUnit, e.chunkThreshold, e.chunkSize)
	if len(steps) == 0 {
		h.finishLocked(true)
	} else {
		e.active = h
		h.timers = make([]Timer, 0, len(steps))
		for _, st := range steps {
			end := st.End
			h.timers = append(h.timers, e.sched.AfterFunc(st.After, func() {
				e.advance(h, end)
			}))
		}
	}
	listeners := e.listeners
	e.mu.Unlock()

	notify(listeners)
	return h
}

// Set cancels any active reveal and shows text immediately.
func (e *Engine) Set(text string) {
	e.mu.Lock()
	changed := e.setLocked(text)
	listeners := e.listeners
	e.mu.Unlock()

	if changed {
		notify(listeners)
	}
}

// ShowAll cancels the active reveal and shows its full text. It reports
// whether a reveal was active.
func (e *Engine) ShowAll() bool {
	e.mu.Lock()
	h := e.active
	if h == nil {
		e.mu.Unlock()
		return false
	}
	changed := e.setLocked(h.full)
	listeners := e.listeners
	e.mu.Unlock()

	if changed {
		notify(listeners)
	}
	return true
}

func (e *Engine) setLocked(text string) bool {
	e.stopActiveLocked()
	e.gen++
	changed := e.text != text
	e.text = text
	return changed
}

// advance runs on the scheduler's goroutine.
func (e *Engine) advance(h *Handle, end int) {
	e.mu.Lock()
	if h.finished || h.gen != e.gen {
		e.mu.Unlock()
		return
	}
	changed := false
	if end > len(e.text) {
		e.text = h.full[:end]
		changed = true
	}
	if end == len(h.full) {
		h.finishLocked(true)
		e.stopActiveLocked()
	}
	listeners := e.listeners
	e.mu.Unlock()

	if changed {
		notify(listeners)
	}
}

// stopActiveLocked stops every pending timer of the active reveal.
func (e *Engine) stopActiveLocked() {
	h := e.active
	if h == nil {
		return
	}
	e.active = nil
	for _, t := range h.timers {
		t.Stop()
	}
	h.timers = nil
	if !h.finished {
		h.finishLocked(false)
	}
}

func notify(listeners []func()) {
	for _, fn := range listeners {
		fn()
	}
}

// =============================================================================
// HANDLE
// =============================================================================

// Handle controls one reveal.
type Handle struct {
	engine    *Engine
	gen       uint64
	full      string
	chunked   bool
	timers    []Timer
	done      chan struct{}
	finished  bool
	completed bool
}

// Cancel synchronously stops every pending callback of this reveal. The
// revealed text stays as it was. Cancel after completion is a no-op.
func (h *Handle) Cancel() {
	e := h.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if h.finished {
		return
	}
	if e.active == h {
		e.stopActiveLocked()
		return
	}
	for _, t := range h.timers {
		t.Stop()
	}
	h.timers = nil
	h.finishLocked(false)
}

// Done is closed when the reveal completes or is cancelled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Completed reports whether the full text was revealed by the schedule.
func (h *Handle) Completed() bool {
	h.engine.mu.Lock()
	defer h.engine.mu.Unlock()
	return h.completed
}

// Text returns the full text this reveal targets.
func (h *Handle) Text() string {
	return h.full
}

// Chunked reports whether the reveal paces by chunks rather than characters.
func (h *Handle) Chunked() bool {
	return h.chunked
}

// Runes returns the rune count of the target text.
func (h *Handle) Runes() int {
	return utf8.RuneCountInString(h.full)
}

func (h *Handle) finishLocked(completed bool) {
	h.finished = true
	h.completed = completed
	close(h.done)
}
