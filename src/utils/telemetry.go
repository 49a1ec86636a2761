package utils

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/trace"
)

// TraceContextDTO carries a span context across process boundaries, e.g. in a
// message header.
type TraceContextDTO struct {
	TraceID    string `json:"trace_id"`
	SpanID     string `json:"span_id"`
	TraceFlags byte   `json:"trace_flags"`
	TraceState string `json:"trace_state,omitempty"`
}

// EncodeTraceContext serializes the span context of ctx. ok is false when ctx carries
// no valid span.
func EncodeTraceContext(ctx context.Context) (b []byte, ok bool, err error) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil, false, nil
	}

	b, err = json.Marshal(TraceContextDTO{
		TraceID:    sc.TraceID().String(),
		SpanID:     sc.SpanID().String(),
		TraceFlags: byte(sc.TraceFlags()),
		TraceState: sc.TraceState().String(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("EncodeTraceContext: %w", err)
	}

	return b, true, nil
}

// DecodeTraceContext returns ctx with the remote span context from data attached.
func DecodeTraceContext(ctx context.Context, data []byte) (context.Context, error) {
	var dto TraceContextDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return ctx, fmt.Errorf("DecodeTraceContext: %w", err)
	}

	traceID, err := trace.TraceIDFromHex(dto.TraceID)
	if err != nil {
		return ctx, fmt.Errorf("DecodeTraceContext: trace id: %w", err)
	}

	spanID, err := trace.SpanIDFromHex(dto.SpanID)
	if err != nil {
		return ctx, fmt.Errorf("DecodeTraceContext: span id: %w", err)
	}

	state, err := trace.ParseTraceState(dto.TraceState)
	if err != nil {
		return ctx, fmt.Errorf("DecodeTraceContext: trace state: %w", err)
	}

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.TraceFlags(dto.TraceFlags),
		TraceState: state,
		Remote:     true,
	})

	return trace.ContextWithRemoteSpanContext(ctx, sc), nil
}
