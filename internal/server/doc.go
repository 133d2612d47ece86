// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the process metrics over HTTP.
//
// Endpoints:
//   - GET /metrics  Prometheus exposition from telemetry.Metrics
//   - GET /healthz  liveness plus storage health as JSON
//   - GET /stats    the in-process request tally as JSON
//
// The server only starts when [metrics] addr is configured, and binds to
// that address exactly, so the default is to listen nowhere.
package server
