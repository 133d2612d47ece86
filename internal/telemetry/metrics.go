// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gemtalk"

// Reveal modes.
const (
	RevealChar  = "char"
	RevealChunk = "chunk"
)

// =============================================================================
// METRICS
// =============================================================================

// Metrics holds the Prometheus collectors and an in-process tally.
type Metrics struct {
	registry *prometheus.Registry

	requests             *prometheus.CounterVec
	duration             *prometheus.HistogramVec
	persistFailures      prometheus.Counter
	conversationsCreated prometheus.Counter
	reveals              *prometheus.CounterVec

	mu    sync.Mutex
	stats Stats
}

// Stats is a snapshot of what this process has observed.
type Stats struct {
	StartTime            time.Time      `json:"start_time"`
	Requests             int            `json:"requests"`
	ByOutcome            map[string]int `json:"by_outcome"`
	ByKind               map[string]int `json:"by_kind,omitempty"`
	TotalLatency         time.Duration  `json:"total_latency"`
	LastLatency          time.Duration  `json:"last_latency"`
	PersistFailures      int            `json:"persist_failures"`
	ConversationsCreated int            `json:"conversations_created"`
	Reveals              map[string]int `json:"reveals,omitempty"`
}

// AverageLatency returns the mean request duration.
func (s Stats) AverageLatency() time.Duration {
	if s.Requests == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Requests)
}

// New creates Metrics on a fresh registry that also carries the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Settled model requests by outcome and error kind.",
		}, []string{"outcome", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from submit to settlement.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}, []string{"outcome"}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Conversation store writes that failed.",
		}),
		conversationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_created_total",
			Help:      "Conversations created.",
		}),
		reveals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reveals_total",
			Help:      "Typewriter reveals started, by pacing mode.",
		}, []string{"mode"}),
		stats: Stats{
			StartTime: time.Now(),
			ByOutcome: make(map[string]int),
			ByKind:    make(map[string]int),
			Reveals:   make(map[string]int),
		},
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.duration,
		m.persistFailures,
		m.conversationsCreated,
		m.reveals,
	)
	return m
}

// ObserveRequest records one settled request. kind is empty on success.
func (m *Metrics) ObserveRequest(outcome, kind string, d time.Duration) {
	m.requests.WithLabelValues(outcome, kind).Inc()
	m.duration.WithLabelValues(outcome).Observe(d.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Requests++
	m.stats.ByOutcome[outcome]++
	if kind != "" {
		m.stats.ByKind[kind]++
	}
	m.stats.TotalLatency += d
	m.stats.LastLatency = d
}

// PersistFailed records a failed store write.
func (m *Metrics) PersistFailed(error) {
	m.persistFailures.Inc()
	m.mu.Lock()
	m.stats.PersistFailures++
	m.mu.Unlock()
}

// ConversationCreated records a new conversation.
func (m *Metrics) ConversationCreated() {
	m.conversationsCreated.Inc()
	m.mu.Lock()
	m.stats.ConversationsCreated++
	m.mu.Unlock()
}

// RevealStarted records a typewriter reveal in the given mode.
func (m *Metrics) RevealStarted(mode string) {
	m.reveals.WithLabelValues(mode).Inc()
	m.mu.Lock()
	m.stats.Reveals[mode]++
	m.mu.Unlock()
}

// Stats returns a copy of the tally.
func (m *Metrics) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stats
	s.ByOutcome = copyCounts(m.stats.ByOutcome)
	s.ByKind = copyCounts(m.stats.ByKind)
	s.Reveals = copyCounts(m.stats.Reveals)
	return s
}

// Uptime returns how long these metrics have been collecting.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.Stats().StartTime)
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
