package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func spanContext(t *testing.T) trace.SpanContext {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	return trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
}

func TestLoggerAddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "json").With("request_id", "01J")

	ctx := trace.ContextWithSpanContext(context.Background(), spanContext(t))
	logger.InfoContext(ctx, "attempt validated", "score", 90)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", line["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", line["span_id"])
	assert.Equal(t, "01J", line["request_id"])
}

func TestLoggerLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "text")

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")

	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestDetachTraceContextFrom(t *testing.T) {
	src := trace.ContextWithSpanContext(context.Background(), spanContext(t))
	base, cancel := context.WithCancel(context.Background())

	detached := DetachTraceContextFrom(src, base)
	assert.Equal(t, spanContext(t).TraceID(), trace.SpanContextFromContext(detached).TraceID())

	cancel()
	assert.Error(t, detached.Err())

	assert.Equal(t, base, DetachTraceContextFrom(context.Background(), base))
}

func TestTracerSampler(t *testing.T) {
	assert.Contains(t, TracerConfig{}.sampler().Description(), "AlwaysOnSampler")
	assert.Contains(t, TracerConfig{SampleRatio: 1}.sampler().Description(), "AlwaysOnSampler")
	assert.Contains(t, TracerConfig{SampleRatio: 0.25}.sampler().Description(), "TraceIDRatioBased{0.25}")
}
