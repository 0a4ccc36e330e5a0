package instrumentation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric label keys.
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrBackend   = "backend"
	attrResult    = "result"
	attrTool      = "tool"
	attrKind      = "kind"
	attrOwner     = "owner"
)

// Histogram buckets in seconds.
var (
	httpBuckets   = []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10}
	accessBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
	storeBuckets  = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}
	toolBuckets   = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
)

// timed pairs a call counter with its latency histogram.
type timed struct {
	total    metric.Int64Counter
	duration metric.Float64Histogram
}

func (t timed) record(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	if t.total == nil {
		return
	}
	opt := metric.WithAttributes(attrs...)
	t.total.Add(ctx, 1, opt)
	t.duration.Record(ctx, d.Seconds(), opt)
}

// Metrics records the service's counters and histograms. The zero value and
// a nil *Metrics discard everything.
type Metrics struct {
	http   timed
	access timed
	store  timed
	tools  timed

	rateLimited    metric.Int64Counter
	authorizations metric.Int64Counter

	detailedLabels bool
}

// instruments creates instruments on one meter and collects their errors.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (in *instruments) counter(name, desc, unit string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("counter %s: %w", name, err))
	}
	return c
}

func (in *instruments) timed(total, duration, what, unit string, buckets []float64) timed {
	h, err := in.meter.Float64Histogram(duration,
		metric.WithDescription(what+" duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("histogram %s: %w", duration, err))
	}
	return timed{
		total:    in.counter(total, "Total number of "+what+"s", unit),
		duration: h,
	}
}

// NewMetrics creates every instrument on meter. detailedLabels adds the
// owner username to authorization checks.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	in := &instruments{meter: meter}
	m := &Metrics{
		http: in.timed("http_requests_total", "http_request_duration_seconds",
			"HTTP request", "{request}", httpBuckets),
		access: in.timed("access_operations_total", "access_operation_duration_seconds",
			"access control operation", "{operation}", accessBuckets),
		store: in.timed("store_operations_total", "store_operation_duration_seconds",
			"storage backend operation", "{operation}", storeBuckets),
		tools: in.timed("mcp_tool_invocations_total", "mcp_tool_duration_seconds",
			"MCP tool invocation", "{invocation}", toolBuckets),
		rateLimited:    in.counter("http_rate_limited_total", "HTTP requests rejected by the rate limiter", "{request}"),
		authorizations: in.counter("access_authorization_checks_total", "Visitor authorization checks", "{check}"),
		detailedLabels: detailedLabels,
	}
	if err := errors.Join(in.errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordHTTPRequest records one HTTP request. path should be the matched
// route pattern; NormalizeRoute bounds raw paths.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.http.record(ctx, duration,
		attribute.String(attrMethod, method),
		attribute.String(attrPath, NormalizeRoute(path)),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
}

func (m *Metrics) RecordRateLimited(ctx context.Context, path string) {
	if m == nil || m.rateLimited == nil {
		return
	}
	m.rateLimited.Add(ctx, 1, metric.WithAttributes(attribute.String(attrPath, NormalizeRoute(path))))
}

// RecordAccessOperation records an access operation. kind is the error kind
// and is left off when empty.
func (m *Metrics) RecordAccessOperation(ctx context.Context, operation, status, kind string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}
	if kind != "" {
		attrs = append(attrs, attribute.String(attrKind, kind))
	}
	m.access.record(ctx, duration, attrs...)
}

// RecordAuthorizationCheck counts a visitor check by result (open, self,
// granted, denied). owner is only attached with detailed labels.
func (m *Metrics) RecordAuthorizationCheck(ctx context.Context, owner, result string) {
	if m == nil || m.authorizations == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String(attrResult, result)}
	if m.detailedLabels && owner != "" {
		attrs = append(attrs, attribute.String(attrOwner, owner))
	}
	m.authorizations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordStoreOperation(ctx context.Context, backend, operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.store.record(ctx, duration,
		attribute.String(attrBackend, backend),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
}

func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.tools.record(ctx, duration,
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	)
}

// DetailedLabels reports whether owner labels are recorded.
func (m *Metrics) DetailedLabels() bool {
	return m != nil && m.detailedLabels
}
