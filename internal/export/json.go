// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/jeranaias/gemtalk/internal/model"
)

// JSONExporter exports the complete conversation record. Its output can be
// decoded straight back into a model.Conversation.
type JSONExporter struct {
	options *Options
}

// document wraps the conversation with export metadata.
type document struct {
	model.Conversation
	ExportedAt time.Time `json:"exportedAt"`
	Generator  string    `json:"generator"`
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// Export converts a conversation to indented JSON.
func (e *JSONExporter) Export(conv model.Conversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}
	return json.MarshalIndent(document{
		Conversation: conv,
		ExportedAt:   model.Normalize(e.options.now()),
		Generator:    "gemtalk",
	}, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
