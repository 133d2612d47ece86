// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// Provider names a remote model backend.
type Provider string

const (
	ProviderGemini     Provider = "gemini"
	ProviderOpenRouter Provider = "openrouter"
)

// ModelInfo describes a remote model the client knows how to talk to.
type ModelInfo struct {
	// ID is the model identifier used in API calls
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Provider selects the backend that serves this model
	Provider Provider `json:"provider"`

	// MaxOutputTokens is the largest reply the model produces
	MaxOutputTokens int `json:"max_output_tokens"`

	Description string `json:"description"`
}

// String returns "Name (provider)".
func (m ModelInfo) String() string {
	return fmt.Sprintf("%s (%s)", m.Name, m.Provider)
}

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// DefaultModel is the model used when the configuration names none.
const DefaultModel = "gemini-2.0-flash"

// DefaultOpenRouterModel is the default for OpenAI-compatible endpoints.
const DefaultOpenRouterModel = "google/gemini-2.0-flash-001"

// Models is the registry of known models keyed by ID.
var Models = map[string]ModelInfo{
	"gemini-2.0-flash": {
		ID:              "gemini-2.0-flash",
		Name:            "Gemini 2.0 Flash",
		Provider:        ProviderGemini,
		MaxOutputTokens: 8192,
		Description:     "Fast general purpose model",
	},
	"gemini-2.0-flash-lite": {
		ID:              "gemini-2.0-flash-lite",
		Name:            "Gemini 2.0 Flash-Lite",
		Provider:        ProviderGemini,
		MaxOutputTokens: 8192,
		Description:     "Lowest latency, lowest cost",
	},
	"gemini-1.5-pro": {
		ID:              "gemini-1.5-pro",
		Name:            "Gemini 1.5 Pro",
		Provider:        ProviderGemini,
		MaxOutputTokens: 8192,
		Description:     "Long context reasoning",
	},
	"google/gemini-2.0-flash-001": {
		ID:              "google/gemini-2.0-flash-001",
		Name:            "Gemini 2.0 Flash via OpenRouter",
		Provider:        ProviderOpenRouter,
		MaxOutputTokens: 8192,
		Description:     "Gemini routed through an OpenAI-compatible gateway",
	},
}

// LookupModel returns the registry entry for id.
func LookupModel(id string) (ModelInfo, bool) {
	info, ok := Models[strings.TrimSpace(id)]
	return info, ok
}

// ModelsFor returns the known models of a provider sorted by ID.
func ModelsFor(p Provider) []ModelInfo {
	var out []ModelInfo
	for _, m := range Models {
		if m.Provider == p {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
