// Package instrumentation provides OpenTelemetry instrumentation for the
// chatmate access service.
//
// This package enables production-grade observability through:
//   - OpenTelemetry metrics for HTTP requests, access operations, and storage calls
//   - Distributed tracing for request flows and storage calls
//   - Prometheus export on a dedicated port
//   - Audit records for every access change
//
// # Metrics
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, route, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//   - http_rate_limited_total: Counter of requests rejected by the rate limiter
//
// Access Metrics:
//   - access_operations_total: Counter of access operations by operation, status, kind
//   - access_operation_duration_seconds: Histogram of access operation durations
//   - access_authorization_checks_total: Counter of visitor checks by result,
//     plus owner when DetailedLabels is set
//
// Storage Metrics:
//   - store_operations_total: Counter of backend calls by backend, operation, status
//   - store_operation_duration_seconds: Histogram of backend call durations
//
// MCP Tool Metrics:
//   - mcp_tool_invocations_total: Counter of MCP tool invocations by tool name and status
//   - mcp_tool_duration_seconds: Histogram of MCP tool execution durations
//
// # Tracing
//
// Spans are created for:
//   - HTTP request handling (otelhttp)
//   - MCP tool invocations (tool.<name>)
//   - Access operations (access.<operation>)
//   - Storage calls (store.<backend>.<operation>)
//
// # Configuration
//
// Config is the telemetry section of the server config file. The config
// package overlays environment variables such as INSTRUMENTATION_ENABLED,
// METRICS_EXPORTER, TRACING_EXPORTER, OTEL_EXPORTER_OTLP_ENDPOINT and
// OTEL_TRACES_SAMPLER_ARG. Deployment metadata comes from
// OTEL_RESOURCE_ATTRIBUTES.
//
// The prometheus exporter writes to a registry owned by the Provider, served
// by Provider.MetricsHandler together with the Go and process collectors.
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, cfg.Telemetry)
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordAuthorizationCheck(ctx, owner, instrumentation.AuthResultGranted)
package instrumentation
