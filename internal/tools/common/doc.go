// Package common provides shared helpers for the MCP tool packages:
// instrumentation wrappers and argument and result conversion.
package common
