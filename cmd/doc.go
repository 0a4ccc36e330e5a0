// Package cmd implements the command-line interface for chatmate.
//
// This package provides the following commands:
//   - serve: Start the HTTP API and MCP server
//   - access: Inspect and change an owner's access configuration
//   - users: Register, look up, search and count users, and list the
//     owners that granted a user access
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// Every command reads its settings from flags, environment variables and an
// optional YAML file given with --config, in that order of precedence.
package cmd
