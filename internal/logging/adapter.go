package logging

import (
	"log/slog"
)

// Logger is the logging surface the storage backends depend on. It keeps the
// backends free of a concrete slog handler so tests can pass Discard.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// With returns a Logger that adds args to every record.
	With(args ...any) Logger
}

// SlogAdapter implements Logger on top of an slog.Logger.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter wraps logger. A nil logger uses slog.Default().
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{logger: logger}
}

// ForBackend returns a Logger tagged with the storage backend name.
func ForBackend(logger *slog.Logger, backend string) *SlogAdapter {
	return NewSlogAdapter(WithBackend(NewSlogAdapter(logger).logger, backend))
}

// Discard returns a Logger that drops every record.
func Discard() *SlogAdapter {
	return &SlogAdapter{logger: slog.New(slog.DiscardHandler)}
}

func (a *SlogAdapter) Debug(msg string, args ...any) { a.logger.Debug(msg, args...) }
func (a *SlogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *SlogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *SlogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }

func (a *SlogAdapter) With(args ...any) Logger {
	return &SlogAdapter{logger: a.logger.With(args...)}
}

// Slog returns the wrapped slog.Logger.
func (a *SlogAdapter) Slog() *slog.Logger {
	return a.logger
}
