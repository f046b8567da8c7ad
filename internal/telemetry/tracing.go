// Package telemetry wraps pipeline stages and supervised-child RPC calls
// as OpenTelemetry spans, tagged with the session/run ids carried on the
// context by internal/idutil.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/arcway-dev/orchestra/internal/idutil"
)

const (
	scope = "orchestra"

	spanPipelineStage = "orchestra.pipeline.stage"
	spanRPCCall       = "orchestra.rpc.call"

	attrSessionID = "orchestra.session_id"
	attrRunID     = "orchestra.run_id"
	attrStage     = "orchestra.stage"
	attrAgentID   = "orchestra.agent_id"
	attrMethod    = "orchestra.rpc.method"
	attrStatus    = "orchestra.status"
)

func tracer() trace.Tracer {
	return otel.Tracer(scope)
}

func idAttrs(ctx context.Context, extra ...attribute.KeyValue) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(extra)+2)
	if sid := idutil.SessionIDFromContext(ctx); sid != "" {
		attrs = append(attrs, attribute.String(attrSessionID, sid))
	}
	if rid := idutil.RunIDFromContext(ctx); rid != "" {
		attrs = append(attrs, attribute.String(attrRunID, rid))
	}
	return append(attrs, extra...)
}

// StartStageSpan opens a span covering one pipeline stage invocation.
func StartStageSpan(ctx context.Context, stageName string) (context.Context, trace.Span) {
	attrs := idAttrs(ctx, attribute.String(attrStage, stageName))
	return tracer().Start(ctx, spanPipelineStage, trace.WithAttributes(attrs...))
}

// StartRPCSpan opens a span covering one JSON-RPC call to a supervised
// child process.
func StartRPCSpan(ctx context.Context, agentID, method string) (context.Context, trace.Span) {
	attrs := idAttrs(ctx,
		attribute.String(attrAgentID, agentID),
		attribute.String(attrMethod, method),
	)
	return tracer().Start(ctx, spanRPCCall, trace.WithAttributes(attrs...))
}

// End records err (if any) on span and closes it. Safe to call with a nil
// span.
func End(span trace.Span, err error) {
	if span == nil {
		return
	}
	defer span.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(attrStatus, "error"))
		return
	}
	span.SetStatus(codes.Ok, "")
	span.SetAttributes(attribute.String(attrStatus, "success"))
}
