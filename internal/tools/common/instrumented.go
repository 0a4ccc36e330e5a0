package common

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/chatmate/chatmate/internal/instrumentation"
	"github.com/chatmate/chatmate/internal/server"
)

// ToolHandler is the mcp-go tool handler signature.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// InstrumentedToolHandler wraps a tool handler with a tool span, metrics and
// audit logging.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return InstrumentedToolHandlerWithOperation(toolName, "", sc, handler)
}

// InstrumentedToolHandlerWithOperation is like InstrumentedToolHandler but
// also records the access operation the tool maps to on the span and in the
// audit record.
func InstrumentedToolHandlerWithOperation(toolName, operation string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		owner := OwnerFromArgs(request.GetArguments())

		ctx, span := instrumentation.StartToolSpan(ctx, toolName, operation, owner)
		defer span.End()

		invocation := instrumentation.StartToolInvocation(ctx, toolName, owner, operation)

		result, err := handler(ctx, request)

		switch {
		case err != nil:
			invocation.End(err.Error())
			instrumentation.SetSpanError(span, err)
		case result != nil && result.IsError:
			invocation.End(resultText(result))
			span.SetAttributes(attribute.String(instrumentation.SpanAttrKind, invocation.Kind))
		default:
			invocation.End("")
			instrumentation.SetSpanSuccess(span)
		}

		sc.Metrics().RecordToolInvocation(ctx, toolName, invocation.Status(), invocation.Duration)
		sc.AuditLogger().LogToolInvocation(invocation)

		return result, err
	}
}

// resultText returns the first text content of a tool result.
func resultText(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if text, ok := mcp.AsTextContent(c); ok {
			return text.Text
		}
	}
	return "tool error"
}
