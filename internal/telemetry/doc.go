// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry records request and storage metrics for gemtalk.
//
// Metrics are registered on a private Prometheus registry so several
// instances can coexist in tests. A running tally is kept alongside the
// Prometheus series for the in-app stats view.
//
// # Series
//
//   - gemtalk_requests_total{outcome,kind}
//   - gemtalk_request_duration_seconds{outcome}
//   - gemtalk_persist_failures_total
//   - gemtalk_conversations_created_total
//   - gemtalk_reveals_total{mode}
//
// # Usage
//
//	m := telemetry.New()
//	ctrl := session.New(store, gw, engine, session.WithMetrics(m))
//	http.Handle("/metrics", m.Handler())
package telemetry
