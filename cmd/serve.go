package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/chatmate/chatmate/internal/config"
	"github.com/chatmate/chatmate/internal/instrumentation"
	"github.com/chatmate/chatmate/internal/server"
	"github.com/chatmate/chatmate/internal/tools/access_tools"
)

// serveFlags holds the serve-only settings on top of storageFlags.
type serveFlags struct {
	storageFlags

	transport string
	httpAddr  string
	readOnly  bool

	rateLimitEnabled    bool
	rateLimitRPS        float64
	rateLimitBurst      int
	rateLimitTrustProxy bool

	metricsEnabled bool
	metricsAddr    string
}

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the access control server",
		Long: `Start the chatmate server.

Supports two transport types:
  - streamable-http: JSON API, health probes and the MCP endpoint at /mcp
    on one HTTP listener (default)
  - stdio: MCP over standard input/output, for local AI assistants

Storage:
  The memory backend keeps data only for the life of the process. Use
  --storage-type mongo or --storage-type valkey for durable storage.

Safety Mode:
  --read-only registers only the MCP tools that do not change access
  configuration. The JSON API is not affected.

Metrics:
  With the HTTP transport, Prometheus metrics are served on a dedicated
  port (--metrics-addr, default :9090).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return serveFunc(cfg)
		},
	}

	flags.storageFlags.register(cmd)

	defaults := config.Default()
	cmd.Flags().StringVar(&flags.transport, "transport", defaults.MCP.Transport, "Transport type: stdio or streamable-http. Can also use MCP_TRANSPORT env var.")
	cmd.Flags().StringVar(&flags.httpAddr, "http-addr", defaults.HTTP.Addr, "HTTP server address (for streamable-http transport). Can also use HTTP_ADDR env var.")
	cmd.Flags().BoolVar(&flags.readOnly, "read-only", false, "Register only read-only MCP tools. Can also use MCP_READ_ONLY env var.")

	cmd.Flags().BoolVar(&flags.rateLimitEnabled, "rate-limit-enabled", defaults.RateLimit.Enabled, "Enable per-IP rate limiting. Can also use RATE_LIMIT_ENABLED env var.")
	cmd.Flags().Float64Var(&flags.rateLimitRPS, "rate-limit-rps", defaults.RateLimit.RequestsPerSecond, "Requests per second allowed per client IP. Can also use RATE_LIMIT_RPS env var.")
	cmd.Flags().IntVar(&flags.rateLimitBurst, "rate-limit-burst", defaults.RateLimit.Burst, "Burst size per client IP. Can also use RATE_LIMIT_BURST env var.")
	cmd.Flags().BoolVar(&flags.rateLimitTrustProxy, "rate-limit-trust-proxy", false, "WARNING: Trust X-Forwarded-For and X-Real-IP. Only enable behind a proxy that sets them. Can also use RATE_LIMIT_TRUST_PROXY env var.")

	cmd.Flags().BoolVar(&flags.metricsEnabled, "metrics-enabled", defaults.Metrics.Enabled, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", defaults.Metrics.Addr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// load extends storageFlags.load with the serve flags the user set.
func (f *serveFlags) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := f.storageFlags.load(cmd)
	if err != nil {
		return cfg, err
	}

	changed := cmd.Flags().Changed
	if changed("transport") {
		cfg.MCP.Transport = f.transport
	}
	if changed("http-addr") {
		cfg.HTTP.Addr = f.httpAddr
	}
	if changed("read-only") {
		cfg.MCP.ReadOnly = f.readOnly
	}
	if changed("rate-limit-enabled") {
		cfg.RateLimit.Enabled = f.rateLimitEnabled
	}
	if changed("rate-limit-rps") {
		cfg.RateLimit.RequestsPerSecond = f.rateLimitRPS
	}
	if changed("rate-limit-burst") {
		cfg.RateLimit.Burst = f.rateLimitBurst
	}
	if changed("rate-limit-trust-proxy") {
		cfg.RateLimit.TrustProxy = f.rateLimitTrustProxy
	}
	if changed("metrics-enabled") {
		cfg.Metrics.Enabled = f.metricsEnabled
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
	return cfg, nil
}

// serveFunc runs the server with a validated configuration. Tests replace it.
var serveFunc = runServe

func runServe(cfg config.Config) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(cfg)

	// Initialize instrumentation provider
	instrConfig := cfg.Telemetry
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Error("error during instrumentation shutdown", "error", err)
		}
	}()

	serverContext, err := openContext(shutdownCtx, cfg, logger, provider)
	if err != nil {
		return err
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Error("error during server context shutdown", "error", err)
		}
	}()

	// Create MCP server
	mcpSrv := mcpserver.NewMCPServer("chatmate", version,
		mcpserver.WithToolCapabilities(true),
	)
	if err := access_tools.RegisterAccessTools(mcpSrv, serverContext, cfg.MCP.ReadOnly); err != nil {
		return fmt.Errorf("failed to register access tools: %w", err)
	}
	if cfg.MCP.ReadOnly {
		logger.Info("MCP tools registered in read-only mode")
	}

	// Start the appropriate server based on transport type
	switch cfg.MCP.Transport {
	case config.TransportStdio:
		return runStdioServer(mcpSrv)
	case config.TransportStreamableHTTP:
		return runHTTPServer(shutdownCtx, cfg, mcpSrv, serverContext, provider, logger)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", cfg.MCP.Transport)
	}
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runHTTPServer(ctx context.Context, cfg config.Config, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, provider *instrumentation.Provider, logger *slog.Logger) error {
	// Start metrics server if enabled
	if cfg.Metrics.Enabled && provider.Enabled() {
		metricsServer, err := startMetricsServer(cfg.Metrics.Addr, provider, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("error during metrics server shutdown", "error", err)
			}
		}()
	}

	httpServer, err := server.NewHTTPServer(sc, mcpSrv, cfg.HTTP, cfg.RateLimit)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	ready := make(chan struct{})
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(ready); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ready:
		logger.Info("HTTP server started",
			"addr", httpServer.Addr(),
			"storage", cfg.Storage.Type,
			"rate_limit", cfg.RateLimit.Enabled)
	case err := <-serverDone:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	logger.Info("HTTP server gracefully stopped")
	return nil
}

func startMetricsServer(addr string, provider *instrumentation.Provider, logger *slog.Logger) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:     addr,
		Provider: provider,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	// Use ready channel to confirm metrics server started successfully
	metricsReady := make(chan struct{})
	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.Start(metricsReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	// Wait for metrics server to be ready or fail
	select {
	case <-metricsReady:
		logger.Info("metrics server started", "addr", metricsServer.Addr())
		return metricsServer, nil
	case err := <-metricsErr:
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("metrics server startup timed out")
	}
}
