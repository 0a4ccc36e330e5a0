package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chatmate/chatmate/internal/access"
	"github.com/chatmate/chatmate/internal/instrumentation"
	"github.com/chatmate/chatmate/internal/store"
)

// ContextConfig holds the dependencies of a ServerContext.
type ContextConfig struct {
	// Repository is the opened storage backend. Required.
	Repository store.Repository

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
}

// ServerContext holds the access services shared by the HTTP API and the
// MCP tools, and owns the storage backend's lifecycle.
type ServerContext struct {
	ctx       context.Context
	cancel    context.CancelFunc
	repo      store.Repository
	service   *access.Service
	directory *access.Directory
	logger    *slog.Logger
	metrics   *instrumentation.Metrics
	audit     *instrumentation.AuditLogger
	mu        sync.RWMutex
	shutdown  bool
}

// NewServerContext creates a new server context
func NewServerContext(ctx context.Context, cfg ContextConfig) (*ServerContext, error) {
	if cfg.Repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &instrumentation.Metrics{}
	}

	svcConfig := access.ServiceConfig{
		Repository: cfg.Repository,
		Logger:     cfg.Logger,
		Metrics:    cfg.Metrics,
		Audit:      cfg.Audit,
	}
	service, err := access.NewService(svcConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create access service: %w", err)
	}
	directory, err := access.NewDirectory(svcConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create user directory: %w", err)
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:       shutdownCtx,
		cancel:    cancel,
		repo:      cfg.Repository,
		service:   service,
		directory: directory,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		audit:     cfg.Audit,
	}, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Service returns the access control service.
func (sc *ServerContext) Service() *access.Service {
	return sc.service
}

// Directory returns the user directory.
func (sc *ServerContext) Directory() *access.Directory {
	return sc.directory
}

// Repository returns the storage backend.
func (sc *ServerContext) Repository() store.Repository {
	return sc.repo
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Metrics returns the metrics recorder. Never nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// AuditLogger returns the audit logger, which may be nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.audit
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context and closes the storage backend.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sc.repo.Close(ctx); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	return nil
}
