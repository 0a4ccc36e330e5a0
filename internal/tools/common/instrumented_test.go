package common

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/chatmate/chatmate/internal/access"
	"github.com/chatmate/chatmate/internal/instrumentation"
	"github.com/chatmate/chatmate/internal/logging"
	"github.com/chatmate/chatmate/internal/server"
	"github.com/chatmate/chatmate/internal/store"
)

type fixture struct {
	sc     *server.ServerContext
	reader *sdkmetric.ManualReader
	audit  *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := instrumentation.NewMetrics(provider.Meter("test"), false)
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	sc, err := server.NewServerContext(context.Background(), server.ContextConfig{
		Repository: store.NewMemory(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:    metrics,
		Audit:      instrumentation.NewAuditLogger(slog.New(slog.NewJSONHandler(buf, nil))),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	return &fixture{sc: sc, reader: reader, audit: buf}
}

func (f *fixture) toolCounts(t *testing.T) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, f.reader.Collect(context.Background(), &rm))

	counts := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "mcp_tool_invocations_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				status, _ := dp.Attributes.Value("status")
				counts[status.AsString()] += dp.Value
			}
		}
	}
	return counts
}

func (f *fixture) auditLine(t *testing.T) map[string]any {
	t.Helper()
	line := strings.TrimSpace(f.audit.String())
	require.Equal(t, 0, strings.Count(line, "\n"), "expected one audit line, got %q", line)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &m))
	return m
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestInstrumentedToolHandler_Success(t *testing.T) {
	f := newFixture(t)

	called := false
	wrapped := InstrumentedToolHandlerWithOperation("access_get_state", access.OpGetState, f.sc,
		func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			called = true
			return mcp.NewToolResultText("ok"), nil
		})

	result, err := wrapped(context.Background(), callRequest(map[string]any{"owner": "olivia"}))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, called)
	assert.Equal(t, int64(1), f.toolCounts(t)[instrumentation.StatusSuccess])

	line := f.auditLine(t)
	assert.Equal(t, "tool_executed", line["msg"])
	assert.Equal(t, "access_get_state", line["tool"])
	assert.Equal(t, logging.AnonymizeUser("olivia"), line[logging.KeyUserHash])
	assert.NotContains(t, f.audit.String(), `"olivia"`)
}

func TestInstrumentedToolHandler_Error(t *testing.T) {
	f := newFixture(t)

	expectedErr := errors.New("test error")
	wrapped := InstrumentedToolHandler("test_tool", f.sc,
		func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return nil, expectedErr
		})

	_, err := wrapped(context.Background(), callRequest(nil))
	assert.Equal(t, expectedErr, err)
	assert.Equal(t, int64(1), f.toolCounts(t)[instrumentation.StatusError])
	assert.Equal(t, "tool_failed", f.auditLine(t)["msg"])
}

func TestInstrumentedToolHandler_ErrorResult(t *testing.T) {
	f := newFixture(t)

	wrapped := InstrumentedToolHandler("test_tool", f.sc,
		func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError("error message"), nil
		})

	result, err := wrapped(context.Background(), callRequest(nil))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Equal(t, int64(1), f.toolCounts(t)[instrumentation.StatusError])
	assert.Equal(t, "tool_failed", f.auditLine(t)["msg"])
}

func TestInstrumentedToolHandler_AuditRecordsKind(t *testing.T) {
	f := newFixture(t)

	wrapped := InstrumentedToolHandlerWithOperation("access_grant_individual", access.OpGrantIndividual, f.sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			_, err := f.sc.Service().GrantIndividualAccess(ctx, "olivia", "ghost")
			return ErrorResult(err), nil
		})

	_, err := wrapped(context.Background(), callRequest(map[string]any{"owner": "olivia", "username": "ghost"}))
	require.NoError(t, err)

	var found bool
	for _, line := range strings.Split(strings.TrimSpace(f.audit.String()), "\n") {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		if m["msg"] == "tool_failed" {
			found = true
			assert.Equal(t, "NotFound", m[logging.KeyKind])
			assert.Equal(t, access.OpGrantIndividual, m[logging.KeyOperation])
		}
	}
	assert.True(t, found, "no tool_failed record in %s", f.audit.String())
}

func TestInstrumentedToolHandler_NoInstrumentation(t *testing.T) {
	sc, err := server.NewServerContext(context.Background(), server.ContextConfig{Repository: store.NewMemory()})
	require.NoError(t, err)
	defer func() { _ = sc.Shutdown() }()

	wrapped := InstrumentedToolHandler("test_tool", sc,
		func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("ok"), nil
		})

	result, err := wrapped(context.Background(), callRequest(nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
}

func TestOwnerFromArgs(t *testing.T) {
	assert.Equal(t, "olivia", OwnerFromArgs(map[string]any{"owner": " olivia "}))
	assert.Equal(t, "", OwnerFromArgs(map[string]any{"owner": 42}))
	assert.Equal(t, "", OwnerFromArgs(nil))
}

func TestErrorResult(t *testing.T) {
	res := ErrorResult(&access.Error{Kind: access.KindNotFound, Message: "owner ghost not found"})
	require.True(t, res.IsError)
	assert.Equal(t, "NotFound: owner ghost not found", testResultText(t, res))

	res = ErrorResult(errors.New("dial tcp 10.0.0.1:27017: connection refused"))
	assert.Equal(t, "StorageFailure: storage failure", testResultText(t, res))
}

func TestJSONResult(t *testing.T) {
	res := JSONResult([]string{"bob"})
	assert.False(t, res.IsError)
	assert.JSONEq(t, `["bob"]`, testResultText(t, res))
}

func testResultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	return text.Text
}
