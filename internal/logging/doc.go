// Package logging provides structured logging utilities for chatmate.
//
// It centralizes attribute naming and logger construction on top of the
// standard library's slog package.
//
// # Usage Patterns
//
// Build the process logger once:
//
//	logger := logging.New(os.Stderr, logging.FormatJSON, debug)
//
// Attach standard attributes:
//
//	logger = logging.WithBackend(logger, "mongo")
//	logger.Info("group granted", logging.Operation("grant_group_access"),
//		logging.Group("friends"), logging.UserHash(owner))
//
// Components that take the Logger interface get the same through
// ForBackend or NewSlogAdapter.
//
// # Security Considerations
//
// Usernames identify people. General logs should carry UserHash; plain
// usernames belong in debug output and the audit stream only.
package logging
