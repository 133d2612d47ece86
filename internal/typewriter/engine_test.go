// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package typewriter

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects every revealed text the engine reports.
type recorder struct {
	mu    sync.Mutex
	eng   *Engine
	texts []string
}

func newRecorder(e *Engine) *recorder {
	r := &recorder{eng: e}
	e.Subscribe(func() {
		r.mu.Lock()
		r.texts = append(r.texts, e.Text())
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

// assertPrefixSequence checks the observed texts grow strictly and are prefixes of full.
func assertPrefixSequence(t *testing.T, seq []string, full string) {
	t.Helper()
	prev := -1
	for _, s := range seq {
		if s == "" {
			continue
		}
		require.True(t, strings.HasPrefix(full, s), "not a prefix: %q", s)
		require.Greater(t, len(s), prev, "sequence not strictly increasing")
		prev = len(s)
	}
	require.NotEmpty(t, seq)
	require.Equal(t, full, seq[len(seq)-1])
}

// =============================================================================
// PLAN TESTS
// =============================================================================

func TestPlan_CharacterMode(t *testing.T) {
	steps := Plan("abcdef", 20*time.Millisecond, 0, 0)
	require.Len(t, steps, 6)
	for i, st := range steps {
		assert.Equal(t, time.Duration(i)*4*time.Millisecond, st.After, "step %d", i)
		assert.Equal(t, i+1, st.End)
	}
}

func TestPlan_RuneBoundaries(t *testing.T) {
	text := "héllo, 世界"
	steps := Plan(text, time.Millisecond, 0, 0)
	require.Len(t, steps, len([]rune(text)))
	for _, st := range steps {
		assert.True(t, utf8Valid(text[:st.End]), "split inside a rune at %d", st.End)
	}
	assert.Equal(t, len(text), steps[len(steps)-1].End)
}

func TestPlan_ChunkMode(t *testing.T) {
	text := strings.Repeat("x", 5001)
	steps := Plan(text, 20*time.Millisecond, DefaultChunkThreshold, DefaultChunkSize)
	require.Len(t, steps, 11)

	for k, st := range steps[:10] {
		assert.Equal(t, (k+1)*500, st.End)
	}
	assert.Equal(t, 5001, steps[10].End)
	assert.Equal(t, time.Duration(0), steps[0].After)
	assert.Equal(t, 200*time.Millisecond, steps[1].After)
	assert.Equal(t, 400*time.Millisecond, steps[4].After)

	// Gaps shrink as the index grows.
	for k := 2; k < len(steps); k++ {
		gapPrev := steps[k-1].After - steps[k-2].After
		gap := steps[k].After - steps[k-1].After
		assert.Less(t, gap, gapPrev)
	}
}

func TestPlan_ExactlyThresholdIsCharacterMode(t *testing.T) {
	steps := Plan(strings.Repeat("y", 5000), time.Millisecond, DefaultChunkThreshold, DefaultChunkSize)
	assert.Len(t, steps, 5000)
}

func TestPlan_Empty(t *testing.T) {
	assert.Empty(t, Plan("", time.Millisecond, 0, 0))
}

// =============================================================================
// REVEAL TESTS
// =============================================================================

func TestReveal_ProducesPrefixSequence(t *testing.T) {
	sched := NewManualScheduler()
	eng := New(WithScheduler(sched))
	rec := newRecorder(eng)

	full := "Hi **there**, 世界"
	h := eng.Reveal(full, 20*time.Millisecond)
	sched.RunAll()

	assertPrefixSequence(t, rec.snapshot(), full)
	assert.Equal(t, full, eng.Text())
	assert.True(t, h.Completed())
	assert.False(t, eng.Revealing())
	assert.Equal(t, 0, sched.Pending())
	select {
	case <-h.Done():
	default:
		t.Fatal("Done not closed after completion")
	}
}

func TestReveal_ChunkModeSequence(t *testing.T) {
	sched := NewManualScheduler()
	eng := New(WithScheduler(sched))
	rec := newRecorder(eng)

	full := strings.Repeat("abcdefghij", 1200)
	eng.Reveal(full, 20*time.Millisecond)
	assert.Equal(t, 24, sched.Pending())
	sched.RunAll()

	seq := rec.snapshot()
	assertPrefixSequence(t, seq, full)
	// One reset notification plus one per chunk.
	assert.Len(t, seq, 25)
}

func TestReveal_OutOfOrderFiring(t *testing.T) {
	// Zero delay puts every step at the same instant.
	sched := NewManualScheduler()
	eng := New(WithScheduler(sched))
	rec := newRecorder(eng)

	eng.Reveal("abc", 0)
	sched.RunAll()
	assertPrefixSequence(t, rec.snapshot(), "abc")
}

func TestCancel_StopsAllCallbacks(t *testing.T) {
	sched := NewManualScheduler()
	eng := New(WithScheduler(sched))

	full := "abcdefghijklmnopqrstuvwxyz"
	h := eng.Reveal(full, 20*time.Millisecond)
	sched.Advance(20 * time.Millisecond) // runes 0..5

	partial := eng.Text()
	require.Equal(t, "abcdef", partial)

	h.Cancel()
	assert.Equal(t, 0, sched.Pending())
	assert.Equal(t, partial, eng.Text())
	assert.False(t, h.Completed())

	sched.Advance(time.Hour)
	assert.Equal(t, partial, eng.Text(), "callbacks fired after cancel")

	eng.Set(h.Text())
	assert.Equal(t, full, eng.Text())
}

func TestCancel_AfterCompletionIsNoop(t *testing.T) {
	sched := NewManualScheduler()
	eng := New(WithScheduler(sched))

	h := eng.Reveal("done", time.Millisecond)
	sched.RunAll()
	require.True(t, h.Completed())

	h.Cancel()
	h.Cancel()
	assert.True(t, h.Completed())
	assert.Equal(t, "done", eng.Text())
}

func TestReveal_SupersedesPrevious(t *testing.T) {
	sched := NewManualScheduler()
	eng := New(WithScheduler(sched))

	first := eng.Reveal("first reply", 20*time.Millisecond)
	sched.Advance(8 * time.Millisecond)
	require.NotEmpty(t, eng.Text())

	second := eng.Reveal("second", 20*time.Millisecond)
	select {
	case <-first.Done():
	default:
		t.Fatal("first reveal not finished by second")
	}
	assert.False(t, first.Completed())

	// Step 0 of the new reveal fires at once on the next advance.
	assert.Equal(t, "", eng.Text())
	sched.RunAll()
	assert.Equal(t, "second", eng.Text())
	assert.True(t, second.Completed())
}

func TestReveal_Empty(t *testing.T) {
	eng := New(WithScheduler(NewManualScheduler()))
	h := eng.Reveal("", time.Millisecond)

	select {
	case <-h.Done():
	default:
		t.Fatal("empty reveal not done")
	}
	assert.True(t, h.Completed())
	assert.Equal(t, "", eng.Text())
}

func TestShowAll(t *testing.T) {
	sched := NewManualScheduler()
	eng := New(WithScheduler(sched))

	full := strings.Repeat("z", 6000)
	h := eng.Reveal(full, 20*time.Millisecond)
	sched.Advance(time.Millisecond)

	assert.True(t, eng.ShowAll())
	assert.Equal(t, full, eng.Text())
	assert.Equal(t, 0, sched.Pending())
	assert.False(t, h.Completed())

	assert.False(t, eng.ShowAll(), "no active reveal left")
}

func TestReveal_RealScheduler(t *testing.T) {
	eng := New()
	h := eng.Reveal("quick", 0)

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reveal did not finish")
	}
	assert.Equal(t, "quick", eng.Text())
}

func utf8Valid(s string) bool {
	return strings.ToValidUTF8(s, "�") == s
}
