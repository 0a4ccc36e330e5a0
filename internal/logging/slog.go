package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"strings"
)

// Attribute keys shared by every package that logs.
const (
	KeyOperation = "operation"
	KeyOwner     = "owner"
	KeyGroup     = "group"
	KeyBackend   = "backend"
	KeyUserHash  = "user_hash"
	KeyDomain    = "user_domain"
	KeyError     = "error"
	KeyKind      = "kind"
	KeyTool      = "tool"
)

// Log output formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// New builds a logger writing to w. Formats other than json produce text.
func New(w io.Writer, format string, debug bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
	}
	if strings.EqualFold(format, FormatJSON) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// WithBackend tags logger with a storage backend name.
func WithBackend(logger *slog.Logger, backend string) *slog.Logger {
	return logger.With(slog.String(KeyBackend, backend))
}

func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }

// Owner logs a plain username. Outside debug output use UserHash.
func Owner(username string) slog.Attr { return slog.String(KeyOwner, username) }

func Group(name string) slog.Attr { return slog.String(KeyGroup, name) }

func Kind(kind string) slog.Attr { return slog.String(KeyKind, kind) }

func Tool(name string) slog.Attr { return slog.String(KeyTool, name) }

// Err is an error attribute. A nil err yields an empty group, which handlers
// drop, so callers need not check.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeUser hashes a username so log lines about the same user can be
// correlated without storing it. The empty name stays empty.
func AnonymizeUser(username string) string {
	if username == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(username))
	return "user:" + hex.EncodeToString(sum[:8])
}

// UserHash is the anonymized username attribute.
func UserHash(username string) slog.Attr {
	return slog.String(KeyUserHash, AnonymizeUser(username))
}

// Domain logs only the domain of an email address, or "" when it has none.
func Domain(email string) slog.Attr {
	_, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		domain = ""
	}
	return slog.String(KeyDomain, domain)
}
