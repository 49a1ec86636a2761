package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceContextRoundTrip(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})

	b, ok, err := EncodeTraceContext(trace.ContextWithSpanContext(context.Background(), sc))
	require.NoError(t, err)
	require.True(t, ok)

	ctx, err := DecodeTraceContext(context.Background(), b)
	require.NoError(t, err)

	got := trace.SpanContextFromContext(ctx)
	assert.Equal(t, sc.TraceID(), got.TraceID())
	assert.Equal(t, sc.SpanID(), got.SpanID())
	assert.True(t, got.IsSampled())
	assert.True(t, got.IsRemote())
}

func TestEncodeTraceContextWithoutSpan(t *testing.T) {
	b, ok, err := EncodeTraceContext(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, b)
}

func TestDecodeTraceContextMalformed(t *testing.T) {
	_, err := DecodeTraceContext(context.Background(), []byte(`{"trace_id":"zz"}`))
	assert.Error(t, err)
}
