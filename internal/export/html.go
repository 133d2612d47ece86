// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"github.com/jeranaias/gemtalk/internal/model"
)

// HTMLExporter exports a conversation to a single self-contained page.
// All message content is escaped; nothing is rendered as markup.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

type htmlMessage struct {
	Class     string
	Label     string
	Time      string
	Paragraph []string
}

type htmlPage struct {
	Title    string
	Metadata bool
	ID       string
	Updated  string
	Count    int
	Exported string
	Messages []htmlMessage
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="generator" content="gemtalk">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; color: #1f2937; background: #f9fafb; }
header { border-bottom: 1px solid #e5e7eb; margin-bottom: 1.5rem; }
.meta { color: #6b7280; font-size: 0.85rem; }
.message { border-radius: 0.5rem; padding: 0.75rem 1rem; margin: 0.75rem 0; white-space: pre-wrap; }
.user { background: #ede9fe; border-left: 4px solid #7c3aed; }
.assistant { background: #ecfeff; border-left: 4px solid #06b6d4; }
.error { background: #fff1f2; border-left: 4px solid #f43f5e; color: #9f1239; }
.label { font-weight: 600; }
time { color: #6b7280; font-size: 0.8rem; margin-left: 0.5rem; }
</style>
</head>
<body>
<header>
<h1>{{.Title}}</h1>
{{- if .Metadata}}
<p class="meta">{{.Count}} messages, updated {{.Updated}}, exported {{.Exported}} <code>{{.ID}}</code></p>
{{- end}}
</header>
<main>
{{- range .Messages}}
<section class="message {{.Class}}">
<div><span class="label">{{.Label}}</span>{{if .Time}}<time>{{.Time}}</time>{{end}}</div>
{{- range .Paragraph}}
<p>{{.}}</p>
{{- end}}
</section>
{{- end}}
</main>
</body>
</html>
`))

// Export converts a conversation to HTML.
func (e *HTMLExporter) Export(conv model.Conversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}

	page := htmlPage{
		Title:    conv.Title,
		Metadata: e.options.IncludeMetadata,
		ID:       conv.ID,
		Updated:  formatTimestamp(conv.LastModified),
		Count:    len(conv.Messages),
		Exported: e.options.now().Format(time.RFC3339),
	}
	for _, msg := range conv.Messages {
		m := htmlMessage{
			Class:     string(msg.Role),
			Label:     roleLabel(msg),
			Paragraph: paragraphs(msg.Content),
		}
		if msg.IsError {
			m.Class = "error"
		}
		if e.options.IncludeTimestamps {
			m.Time = formatTimestamp(msg.Timestamp)
		}
		page.Messages = append(page.Messages, m)
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, page); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

// paragraphs splits content on blank lines.
func paragraphs(content string) []string {
	var out []string
	for _, p := range strings.Split(strings.TrimSpace(content), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
