package instrumentation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/chatmate/chatmate/internal/logging"
)

// identify renders a username as a plain attribute when includePII is set,
// otherwise as key_hash with the anonymized value.
func identify(includePII bool, key, username string) slog.Attr {
	if includePII {
		return slog.String(key, username)
	}
	return slog.String(key+"_hash", logging.AnonymizeUser(username))
}

// ToolInvocation is the audit record of one MCP tool call. Start it before
// the handler runs and End it with the handler's failure, if any.
type ToolInvocation struct {
	Tool      string
	Owner     string // owner whose configuration the tool read or changed
	Operation string // access operation the tool maps to

	Success  bool
	Kind     string // error kind parsed from a "Kind: message" tool error
	Error    string
	Duration time.Duration

	TraceID string
	SpanID  string

	start time.Time
}

// StartToolInvocation opens a record and captures the trace context of ctx.
func StartToolInvocation(ctx context.Context, tool, owner, operation string) *ToolInvocation {
	ti := &ToolInvocation{
		Tool:      tool,
		Owner:     owner,
		Operation: operation,
		start:     time.Now(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		ti.TraceID = sc.TraceID().String()
		ti.SpanID = sc.SpanID().String()
	}
	return ti
}

// End stops the clock. An empty failure marks the call successful. A
// failure of the form "Kind: message" also sets Kind.
func (ti *ToolInvocation) End(failure string) *ToolInvocation {
	ti.Duration = time.Since(ti.start)
	ti.Success = failure == ""
	ti.Error = failure
	if kind, _, ok := strings.Cut(failure, ": "); ok && !strings.ContainsAny(kind, " \t") {
		ti.Kind = kind
	}
	return ti
}

// Status returns StatusSuccess or StatusError.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// attrs hashes the owner into user_hash unless includePII is set. The span
// ID is only logged alongside plain identities.
func (ti *ToolInvocation) attrs(includePII bool) []any {
	args := []any{
		logging.Tool(ti.Tool),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}
	if ti.Owner != "" {
		if includePII {
			args = append(args, logging.Owner(ti.Owner))
		} else {
			args = append(args, logging.UserHash(ti.Owner))
		}
	}
	if ti.Operation != "" {
		args = append(args, logging.Operation(ti.Operation))
	}
	if ti.Kind != "" {
		args = append(args, logging.Kind(ti.Kind))
	}
	if ti.Error != "" {
		args = append(args, slog.String("error", ti.Error))
	}
	if ti.TraceID != "" {
		args = append(args, slog.String("trace_id", ti.TraceID))
	}
	if includePII && ti.SpanID != "" {
		args = append(args, slog.String("span_id", ti.SpanID))
	}
	return args
}

// AccessChange is the audit record of one mutating access operation.
type AccessChange struct {
	Operation string
	Owner     string
	Target    string // user or group the operation acted on
	Group     string // group for membership changes
	Success   bool
	Kind      string // error kind when Success is false
	Error     string
	Duration  time.Duration
	TraceID   string
}

func (c *AccessChange) attrs(includePII bool) []any {
	args := []any{
		logging.Operation(c.Operation),
		identify(includePII, "owner", c.Owner),
		slog.Bool("success", c.Success),
		slog.Duration("duration", c.Duration),
	}
	if c.Target != "" {
		args = append(args, identify(includePII, "target", c.Target))
	}
	if c.Group != "" {
		args = append(args, slog.String("group", c.Group))
	}
	if c.Kind != "" {
		args = append(args, logging.Kind(c.Kind))
	}
	if c.Error != "" {
		args = append(args, slog.String("error", c.Error))
	}
	if c.TraceID != "" {
		args = append(args, slog.String("trace_id", c.TraceID))
	}
	return args
}

// AuditLogger writes audit records for tool calls and access changes. A nil
// AuditLogger is a no-op.
type AuditLogger struct {
	logger *slog.Logger
	config AuditLoggingConfig
}

// NewAuditLogger returns an enabled audit logger that hashes usernames.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true})
}

// NewAuditLoggerWithConfig returns an audit logger for config. A nil logger
// uses slog.Default().
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{logger: logger, config: config}
}

func (al *AuditLogger) emit(success bool, okMsg, failMsg string, args []any) {
	if success {
		al.logger.Info(okMsg, args...)
		return
	}
	al.logger.Warn(failMsg, args...)
}

// LogToolInvocation writes tool_executed, or tool_failed at warn level.
func (al *AuditLogger) LogToolInvocation(ti *ToolInvocation) {
	if al == nil || !al.config.Enabled {
		return
	}
	al.emit(ti.Success, "tool_executed", "tool_failed", ti.attrs(al.config.IncludePII))
}

// LogAccessChange writes access_changed, or access_change_rejected at warn
// level.
func (al *AuditLogger) LogAccessChange(c *AccessChange) {
	if al == nil || !al.config.Enabled {
		return
	}
	al.emit(c.Success, "access_changed", "access_change_rejected", c.attrs(al.config.IncludePII))
}
