package instrumentation

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/chatmate/chatmate/internal/logging"
)

const (
	testOwner   = "olivia"
	testTarget  = "bob"
	testTraceID = "abc123def456"
	testSpanID  = "span789"
	testTool    = "access_grant_individual"
)

// jsonAudit returns an audit logger writing JSON lines into buf.
func jsonAudit(buf *bytes.Buffer) *AuditLogger {
	return NewAuditLogger(slog.New(slog.NewJSONHandler(buf, nil)))
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	if strings.Count(line, "\n") != 0 {
		t.Fatalf("expected exactly one log line, got %q", line)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("invalid json log line %q: %v", line, err)
	}
	return m
}

func TestToolInvocation_End(t *testing.T) {
	ti := StartToolInvocation(context.Background(), testTool, testOwner, "grant_individual_access")
	if ti.TraceID != "" || ti.SpanID != "" {
		t.Error("expected no trace context without a span")
	}

	ti.End("")
	if !ti.Success || ti.Status() != StatusSuccess {
		t.Errorf("expected success, got %+v", ti)
	}
	if ti.Duration < 0 {
		t.Error("Duration should not be negative")
	}
}

func TestToolInvocation_EndParsesKind(t *testing.T) {
	tests := []struct {
		failure  string
		wantKind string
	}{
		{"NotFound: owner bob not found", "NotFound"},
		{"StorageFailure: storage failure", "StorageFailure"},
		{"context deadline exceeded", ""},
		{"missing owner: field is required", ""},
	}
	for _, tt := range tests {
		ti := StartToolInvocation(context.Background(), testTool, "", "").End(tt.failure)
		if ti.Success || ti.Status() != StatusError {
			t.Errorf("%q: expected failure", tt.failure)
		}
		if ti.Kind != tt.wantKind {
			t.Errorf("%q: Kind = %q, want %q", tt.failure, ti.Kind, tt.wantKind)
		}
		if ti.Error != tt.failure {
			t.Errorf("Error = %q, want %q", ti.Error, tt.failure)
		}
	}
}

func TestToolInvocation_Attrs(t *testing.T) {
	ti := &ToolInvocation{
		Tool:      testTool,
		Owner:     testOwner,
		Operation: "grant_individual_access",
		Kind:      "AlreadyGranted",
		Error:     "AlreadyGranted: bob already has access",
		TraceID:   testTraceID,
		SpanID:    testSpanID,
	}

	hashed := attrMap(ti.attrs(false))
	if _, ok := hashed[logging.KeyOwner]; ok {
		t.Error("hashed attrs must not carry the plain owner")
	}
	if hashed[logging.KeyUserHash] != logging.AnonymizeUser(testOwner) {
		t.Errorf("user_hash = %q", hashed[logging.KeyUserHash])
	}
	if hashed[logging.KeyKind] != "AlreadyGranted" || hashed["trace_id"] != testTraceID {
		t.Errorf("unexpected attrs %v", hashed)
	}
	if _, ok := hashed["span_id"]; ok {
		t.Error("span_id is only logged with plain identities")
	}

	plain := attrMap(ti.attrs(true))
	if plain[logging.KeyOwner] != testOwner || plain["span_id"] != testSpanID {
		t.Errorf("unexpected attrs %v", plain)
	}

	if n := len((&ToolInvocation{Tool: testTool}).attrs(false)); n != 3 {
		t.Errorf("expected tool, duration and success only, got %d attrs", n)
	}
}

func attrMap(args []any) map[string]string {
	m := make(map[string]string)
	for _, a := range args {
		if attr, ok := a.(slog.Attr); ok {
			m[attr.Key] = attr.Value.String()
		}
	}
	return m
}

func TestAuditLogger_LogToolInvocation(t *testing.T) {
	var buf bytes.Buffer
	al := jsonAudit(&buf)

	ctx := context.Background()
	al.LogToolInvocation(StartToolInvocation(ctx, testTool, testOwner, "").End(""))
	m := decodeLine(t, &buf)
	if m["msg"] != "tool_executed" || m["level"] != "INFO" {
		t.Errorf("unexpected record %v", m)
	}

	buf.Reset()
	al.LogToolInvocation(StartToolInvocation(ctx, testTool, testOwner, "").End("NotFound: owner olivia not found"))
	m = decodeLine(t, &buf)
	if m["msg"] != "tool_failed" || m["level"] != "WARN" || m[logging.KeyKind] != "NotFound" {
		t.Errorf("unexpected record %v", m)
	}
}

func TestAuditLogger_LogAccessChange_HashesByDefault(t *testing.T) {
	var buf bytes.Buffer
	al := jsonAudit(&buf)

	al.LogAccessChange(&AccessChange{
		Operation: "grant_individual_access",
		Owner:     testOwner,
		Target:    testTarget,
		Success:   true,
	})

	m := decodeLine(t, &buf)
	if m["msg"] != "access_changed" {
		t.Errorf("msg = %v", m["msg"])
	}
	if m["owner_hash"] != logging.AnonymizeUser(testOwner) || m["target_hash"] != logging.AnonymizeUser(testTarget) {
		t.Errorf("expected hashed identities, got %v", m)
	}
	if strings.Contains(buf.String(), testOwner) {
		t.Error("plain owner leaked into audit log")
	}
}

func TestAuditLogger_LogAccessChange_WithPII(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLoggerWithConfig(slog.New(slog.NewJSONHandler(&buf, nil)), AuditLoggingConfig{
		Enabled:    true,
		IncludePII: true,
	})

	al.LogAccessChange(&AccessChange{
		Operation: "add_user_to_group",
		Owner:     testOwner,
		Target:    testTarget,
		Group:     "eng",
		Kind:      "AlreadyMember",
		Error:     "user bob already in group eng",
	})

	m := decodeLine(t, &buf)
	if m["msg"] != "access_change_rejected" || m["level"] != "WARN" {
		t.Errorf("unexpected record %v", m)
	}
	if m["owner"] != testOwner || m["target"] != testTarget || m["group"] != "eng" {
		t.Errorf("expected plain identities, got %v", m)
	}
	if m[logging.KeyKind] != "AlreadyMember" {
		t.Errorf("kind = %v", m[logging.KeyKind])
	}
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLoggerWithConfig(slog.New(slog.NewJSONHandler(&buf, nil)), AuditLoggingConfig{Enabled: false})

	al.LogToolInvocation(StartToolInvocation(context.Background(), testTool, testOwner, "").End(""))
	al.LogAccessChange(&AccessChange{Operation: "create_group", Owner: testOwner, Success: true})

	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestAuditLogger_NilIsNoop(t *testing.T) {
	var al *AuditLogger

	// Should not panic
	al.LogToolInvocation(StartToolInvocation(context.Background(), testTool, "", "").End(""))
	al.LogAccessChange(&AccessChange{Operation: "create_group"})
}

func TestAuditLogger_IncludePII(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLoggerWithConfig(slog.New(slog.NewJSONHandler(&buf, nil)), AuditLoggingConfig{Enabled: true, IncludePII: true})

	al.LogToolInvocation(StartToolInvocation(context.Background(), testTool, testOwner, "").End(""))

	m := decodeLine(t, &buf)
	if m[logging.KeyOwner] != testOwner {
		t.Errorf("expected plain owner with PII enabled, got %v", m)
	}
}
