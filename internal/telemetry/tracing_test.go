// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTracing_StdoutWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	tr, err := NewTracing(context.Background(), TracingOptions{
		Exporter:    ExporterStdout,
		ServiceName: "gemtalk",
		Version:     "test",
		Writer:      &buf,
	})
	require.NoError(t, err)

	_, span := tr.Tracer("test").Start(context.Background(), "gateway.run")
	assert.True(t, span.IsRecording())
	span.End()
	require.NoError(t, tr.Shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, `"Name": "gateway.run"`)
	assert.Contains(t, out, "gemtalk")
}

func TestNewTracing_NoneIsNoop(t *testing.T) {
	for _, exporter := range []string{"", ExporterNone} {
		tr, err := NewTracing(context.Background(), TracingOptions{Exporter: exporter})
		require.NoError(t, err)

		_, span := tr.Tracer("test").Start(context.Background(), "gateway.run")
		assert.False(t, span.IsRecording())
		span.End()
		assert.NoError(t, tr.Shutdown(context.Background()))
	}
}

func TestNewTracing_UnknownExporter(t *testing.T) {
	_, err := NewTracing(context.Background(), TracingOptions{Exporter: "zipkin"})
	assert.Error(t, err)
}

func TestOTLPOptions_Endpoint(t *testing.T) {
	assert.Len(t, otlpOptions("localhost:4318"), 2)
	assert.Len(t, otlpOptions("http://collector:4318"), 2)
	assert.Len(t, otlpOptions("https://collector:4318"), 1)
}
