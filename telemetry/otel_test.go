package telemetry

import (
	"context"
	"testing"

	"github.com/agentuity/go-cellular/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNewLogsSpans(t *testing.T) {
	log := logger.NewTestLogger()
	tp, shutdown, err := New(context.Background(), "cellular-test", log)
	require.NoError(t, err)
	require.NotNil(t, tp)
	defer shutdown()

	tracer := tp.Tracer("test")
	_, span := tracer.Start(context.Background(), "handshake")
	span.SetAttributes(attribute.String("cellular.status", "ErrorPerformingSSLHandshake"))
	span.SetStatus(codes.Error, "ErrorPerformingSSLHandshake")
	span.End()

	assert.True(t, log.Contains("span handshake"))
	assert.True(t, log.Contains("cellular.status=ErrorPerformingSSLHandshake"))
	assert.True(t, log.Contains("error=ErrorPerformingSSLHandshake"))
}

func TestStartSpan(t *testing.T) {
	log := logger.NewTestLogger()
	tp, shutdown, err := New(context.Background(), "cellular-test", log)
	require.NoError(t, err)
	defer shutdown()

	ctx, log2, span := StartSpan(context.Background(), log, tp.Tracer("test"), "resolve")
	require.NotNil(t, ctx)
	log2.Info("inside")
	span.End()

	entries := log.Logs()
	require.NotEmpty(t, entries)
	var tagged bool
	for _, e := range entries {
		if e.Message == "inside" {
			tagged = e.Metadata["trace_id"] == span.SpanContext().TraceID().String()
		}
	}
	assert.True(t, tagged, "the returned logger carries the trace id")
}

func TestStartSpanNoop(t *testing.T) {
	log := logger.NewTestLogger()
	_, log2, span := StartSpan(context.Background(), log, noop.NewTracerProvider().Tracer("test"), "x")
	require.NotNil(t, span)
	assert.Same(t, log, log2, "an invalid span context leaves the logger alone")
	span.End()
}
