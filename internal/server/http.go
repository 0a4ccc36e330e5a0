package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/chatmate/chatmate/internal/config"
)

// rateLimitCleanupInterval is how often idle client buckets are dropped.
const rateLimitCleanupInterval = time.Minute

// HTTPServer serves the JSON API, health probes and, optionally, the MCP
// streamable HTTP endpoint on one listener.
type HTTPServer struct {
	serverContext *ServerContext
	mcpServer     *mcpserver.MCPServer
	config        config.HTTPConfig
	rateLimit     config.RateLimitConfig
	health        *HealthChecker
	httpServer    *http.Server
	addr          string
	stopCleanup   context.CancelFunc
}

// NewHTTPServer creates the HTTP server. mcpSrv may be nil, in which case
// /mcp is not mounted.
func NewHTTPServer(sc *ServerContext, mcpSrv *mcpserver.MCPServer, httpCfg config.HTTPConfig, rl config.RateLimitConfig) (*HTTPServer, error) {
	if sc == nil {
		return nil, fmt.Errorf("server context is required")
	}
	return &HTTPServer{
		serverContext: sc,
		mcpServer:     mcpSrv,
		config:        httpCfg,
		rateLimit:     rl,
		health:        NewHealthChecker(sc),
		addr:          httpCfg.Addr,
	}, nil
}

// HealthChecker returns the server's health checker.
func (s *HTTPServer) HealthChecker() *HealthChecker {
	return s.health
}

// Handler builds the full middleware chain around the routes.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	NewAPI(s.serverContext).Register(mux)
	s.health.RegisterHealthEndpoints(mux)

	if s.mcpServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(s.mcpServer,
			mcpserver.WithEndpointPath("/mcp"),
		))
	}

	metrics := s.serverContext.Metrics()
	var h http.Handler = recordMetrics(metrics, mux)
	if s.rateLimit.Enabled {
		limiter := NewRateLimiter(s.rateLimit.RequestsPerSecond, s.rateLimit.Burst, s.rateLimit.TrustProxy)
		ctx, cancel := context.WithCancel(s.serverContext.Context())
		if s.stopCleanup != nil {
			s.stopCleanup()
		}
		s.stopCleanup = cancel
		go limiter.Cleanup(ctx, rateLimitCleanupInterval)
		h = limiter.Middleware(metrics, h)
	}
	h = securityHeaders(h)
	return traceRequests(h)
}

// Start binds the listener and serves until Shutdown. ready, when non-nil,
// is closed once the listener is bound.
func (s *HTTPServer) Start(ready chan<- struct{}) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.addr = ln.Addr().String()
	if ready != nil {
		close(ready)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown marks the server not ready and gracefully stops it.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	if s.stopCleanup != nil {
		s.stopCleanup()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Addr returns the listen address, resolved once the server has started.
func (s *HTTPServer) Addr() string {
	return s.addr
}
