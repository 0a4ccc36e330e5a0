package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every chatmate span.
const TracerName = "github.com/chatmate/chatmate"

// Span attribute keys.
const (
	SpanAttrTool      = "mcp.tool"
	SpanAttrOperation = "access.operation"
	SpanAttrOwner     = "access.owner"
	SpanAttrTarget    = "access.target" // user an operation acts on
	SpanAttrGroup     = "access.group"
	SpanAttrKind      = "access.error_kind"
	SpanAttrBackend   = "store.backend"
)

// nonEmpty appends string attributes whose value is set.
func nonEmpty(attrs []attribute.KeyValue, kv ...attribute.KeyValue) []attribute.KeyValue {
	for _, a := range kv {
		if a.Value.AsString() != "" {
			attrs = append(attrs, a)
		}
	}
	return attrs
}

// TargetAttrs returns the target user and group attributes, skipping empty
// values.
func TargetAttrs(target, group string) []attribute.KeyValue {
	return nonEmpty(nil,
		attribute.String(SpanAttrTarget, target),
		attribute.String(SpanAttrGroup, group),
	)
}

func startSpan(ctx context.Context, name string, kind trace.SpanKind, attrs []attribute.KeyValue) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(kind),
	)
}

// StartToolSpan starts a server span named tool.<name> for an MCP tool call.
// Empty operation and owner are left off.
func StartToolSpan(ctx context.Context, toolName, operation, owner string) (context.Context, trace.Span) {
	attrs := nonEmpty([]attribute.KeyValue{attribute.String(SpanAttrTool, toolName)},
		attribute.String(SpanAttrOperation, operation),
		attribute.String(SpanAttrOwner, owner),
	)
	return startSpan(ctx, "tool."+toolName, trace.SpanKindServer, attrs)
}

// StartAccessSpan starts an internal span named access.<operation>.
func StartAccessSpan(ctx context.Context, operation, owner string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := nonEmpty([]attribute.KeyValue{attribute.String(SpanAttrOperation, operation)},
		attribute.String(SpanAttrOwner, owner))
	return startSpan(ctx, "access."+operation, trace.SpanKindInternal, append(all, attrs...))
}

// StartStoreSpan starts a client span named store.<backend>.<operation>.
func StartStoreSpan(ctx context.Context, backend, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := []attribute.KeyValue{
		attribute.String(SpanAttrBackend, backend),
		attribute.String(SpanAttrOperation, operation),
	}
	return startSpan(ctx, "store."+backend+"."+operation, trace.SpanKindClient, append(all, attrs...))
}

// SetSpanError records err on the span and marks it failed. A nil err is
// ignored.
func SetSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanSuccess marks the span OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// TraceID returns the trace ID of the span in ctx, or "" without one.
func TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}
