package common

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/chatmate/chatmate/internal/access"
)

// OwnerFromArgs returns the trimmed "owner" argument, or "" when absent.
func OwnerFromArgs(args map[string]any) string {
	owner, _ := args["owner"].(string)
	return strings.TrimSpace(owner)
}

// ErrorResult turns an access error into a tool error result prefixed with
// its kind. Storage failures keep their cause out of the result.
func ErrorResult(err error) *mcp.CallToolResult {
	kind := access.KindOf(err)
	msg := access.MessageOf(err)
	if kind == access.KindStorageFailure {
		msg = "storage failure"
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %s", kind, msg))
}

// JSONResult renders v as an indented JSON text result.
func JSONResult(v any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err))
	}
	return mcp.NewToolResultText(string(b))
}
