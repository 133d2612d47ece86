// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package typewriter

import (
	"sort"
	"sync"
	"time"
)

// =============================================================================
// SCHEDULER
// =============================================================================

// Timer is a pending scheduled callback.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer, false if it already fired or was stopped.
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealScheduler schedules on wall clock timers.
var RealScheduler Scheduler = realScheduler{}

// =============================================================================
// MANUAL SCHEDULER
// =============================================================================

// ManualScheduler is a Scheduler driven by explicit Advance calls. Callbacks
// run on the goroutine calling Advance, in due-time order.
type ManualScheduler struct {
	mu      sync.Mutex
	now     time.Duration
	seq     int
	pending []*manualTimer
}

type manualTimer struct {
	s       *ManualScheduler
	due     time.Duration
	seq     int
	f       func()
	stopped bool
	fired   bool
}

// NewManualScheduler creates a scheduler whose clock starts at zero.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// AfterFunc registers f to run once the clock has advanced by d.
func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d < 0 {
		d = 0
	}
	s.seq++
	t := &manualTimer{s: s, due: s.now + d, seq: s.seq, f: f}
	s.pending = append(s.pending, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward by d, firing every due callback.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		f := s.popDue(target)
		if f == nil {
			return
		}
		f()
	}
}

// RunAll fires every pending callback, including ones scheduled by callbacks.
func (s *ManualScheduler) RunAll() {
	for {
		s.mu.Lock()
		s.compact()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		latest := s.pending[len(s.pending)-1].due
		s.mu.Unlock()
		s.Advance(latest - s.Now())
	}
}

// Now returns the elapsed manual time.
func (s *ManualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Pending returns the number of callbacks that are neither fired nor stopped.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compact()
	return len(s.pending)
}

func (s *ManualScheduler) popDue(target time.Duration) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compact()
	if len(s.pending) == 0 || s.pending[0].due > target {
		s.now = target
		return nil
	}
	t := s.pending[0]
	s.pending = s.pending[1:]
	t.fired = true
	s.now = t.due
	return t.f
}

// compact drops stopped timers and keeps the rest sorted. Caller holds mu.
func (s *ManualScheduler) compact() {
	live := s.pending[:0]
	for _, t := range s.pending {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	for i := len(live); i < len(s.pending); i++ {
		s.pending[i] = nil
	}
	s.pending = live
	sort.SliceStable(s.pending, func(i, j int) bool {
		if s.pending[i].due != s.pending[j].due {
			return s.pending[i].due < s.pending[j].due
		}
		return s.pending[i].seq < s.pending[j].seq
	})
}
