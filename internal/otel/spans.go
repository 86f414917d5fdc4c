package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Standard attribute keys for orchestrator spans.
var (
	AttrTaskID       = attribute.Key("taskorc.task.id")
	AttrRoundID      = attribute.Key("taskorc.round.id")
	AttrUnitID       = attribute.Key("taskorc.unit.id")
	AttrToolName     = attribute.Key("taskorc.tool.name")
	AttrModel        = attribute.Key("taskorc.llm.model")
	AttrTokensInput  = attribute.Key("taskorc.llm.tokens.input")
	AttrTokensOutput = attribute.Key("taskorc.llm.tokens.output")
	AttrPhase        = attribute.Key("taskorc.llm.phase")
	AttrMCPServer    = attribute.Key("taskorc.mcp.server")
	AttrSessionID    = attribute.Key("taskorc.session.id")
)

// StartSpan is a convenience wrapper that starts an internal span with common attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartServerSpan starts a span for an inbound request (Gateway).
func StartServerSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartClientSpan starts a span for an outbound call (LLM API, MCP).
func StartClientSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}
