// Package server hosts the chatmate access service over HTTP.
//
// # Key Components
//
// ServerContext owns the storage backend and the access.Service and
// access.Directory built on it. Both the JSON API and the MCP tools share
// one ServerContext, so every surface sees the same owner records.
//
// HTTPServer serves on one listener:
//   - the JSON API under /users, /access and /chat (see API.Register)
//   - the Kubernetes probes /healthz, /readyz and /healthz/detailed
//   - the MCP streamable HTTP endpoint at /mcp when an MCP server is given
//
// MetricsServer exposes Prometheus metrics on a separate address.
//
// # Middleware
//
// Requests pass through, outermost first: an otelhttp server span, security
// headers, a per-IP token bucket rate limiter and HTTP request metrics.
// Rate-limited requests get 429 with a Retry-After header.
//
// # Errors
//
// Failed API calls answer with {"error": kind, "message": text} and the
// status of the access error kind. Storage failures are reported as 500
// without their underlying cause.
package server
