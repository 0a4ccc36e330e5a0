// Package config loads the chatmate server configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables. Command-line flags are applied last by the cmd
// package, and only for flags the user actually set.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chatmate/chatmate/internal/instrumentation"
	"github.com/chatmate/chatmate/internal/logging"
	"github.com/chatmate/chatmate/internal/store"
)

// Transport types for the MCP server.
const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable-http"
)

// Config is the complete server configuration.
type Config struct {
	Storage   store.Config           `yaml:"storage"`
	HTTP      HTTPConfig             `yaml:"http"`
	RateLimit RateLimitConfig        `yaml:"rateLimit"`
	Metrics   MetricsConfig          `yaml:"metrics"`
	Logging   LoggingConfig          `yaml:"logging"`
	MCP       MCPConfig              `yaml:"mcp"`
	Telemetry instrumentation.Config `yaml:"telemetry"`
}

// HTTPConfig configures the JSON API server.
type HTTPConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	WriteTimeout      time.Duration `yaml:"writeTimeout"`
	IdleTimeout       time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
}

// RateLimitConfig configures per-client request limiting.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`
	// RequestsPerSecond is the sustained rate per client IP.
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
	// TrustProxy honours X-Forwarded-For and X-Real-IP. Enable only behind
	// a proxy that sets them.
	TrustProxy bool `yaml:"trustProxy"`
}

// MetricsConfig configures the dedicated metrics server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Format string `yaml:"format"`
	Debug  bool   `yaml:"debug"`
}

// MCPConfig configures the MCP tool surface.
type MCPConfig struct {
	Transport string `yaml:"transport"`
	// ReadOnly registers only the tools that do not change access state.
	ReadOnly bool `yaml:"readOnly"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage: store.DefaultConfig(),
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Logging: LoggingConfig{
			Format: logging.FormatText,
		},
		MCP: MCPConfig{
			Transport: TransportStreamableHTTP,
		},
		Telemetry: instrumentation.DefaultConfig(),
	}
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto the configuration.
// Unset or unparsable variables leave the current value in place.
func (c *Config) ApplyEnv() {
	envString("STORAGE_TYPE", &c.Storage.Type)
	envString("MONGO_URI", &c.Storage.Mongo.URI)
	envString("MONGO_DATABASE", &c.Storage.Mongo.Database)
	envString("MONGO_COLLECTION", &c.Storage.Mongo.Collection)
	envDuration("MONGO_TIMEOUT", &c.Storage.Mongo.Timeout)
	envString("VALKEY_URL", &c.Storage.Valkey.Addr)
	envString("VALKEY_PASSWORD", &c.Storage.Valkey.Password)
	envInt("VALKEY_DB", &c.Storage.Valkey.DB)
	envString("VALKEY_KEY_PREFIX", &c.Storage.Valkey.KeyPrefix)

	envString("HTTP_ADDR", &c.HTTP.Addr)

	envBool("RATE_LIMIT_ENABLED", &c.RateLimit.Enabled)
	envFloat("RATE_LIMIT_RPS", &c.RateLimit.RequestsPerSecond)
	envInt("RATE_LIMIT_BURST", &c.RateLimit.Burst)
	envBool("RATE_LIMIT_TRUST_PROXY", &c.RateLimit.TrustProxy)

	envBool("METRICS_ENABLED", &c.Metrics.Enabled)
	envString("METRICS_ADDR", &c.Metrics.Addr)

	envString("LOG_FORMAT", &c.Logging.Format)
	envBool("DEBUG", &c.Logging.Debug)

	envString("MCP_TRANSPORT", &c.MCP.Transport)
	envBool("MCP_READ_ONLY", &c.MCP.ReadOnly)

	t := &c.Telemetry
	envBool("INSTRUMENTATION_ENABLED", &t.Enabled)
	envString("OTEL_SERVICE_NAME", &t.ServiceName)
	envString("OTEL_SERVICE_INSTANCE_ID", &t.InstanceID)
	envString("METRICS_EXPORTER", &t.Metrics.Exporter)
	envDuration("METRICS_EXPORT_INTERVAL", &t.Metrics.Interval)
	envBool("METRICS_DETAILED_LABELS", &t.Metrics.DetailedLabels)
	envString("TRACING_EXPORTER", &t.Tracing.Exporter)
	envFloat("OTEL_TRACES_SAMPLER_ARG", &t.Tracing.SamplingRate)
	envString("OTEL_EXPORTER_OTLP_ENDPOINT", &t.OTLP.Endpoint)
	envBool("OTEL_EXPORTER_OTLP_INSECURE", &t.OTLP.Insecure)
	envBool("AUDIT_LOGGING_ENABLED", &t.Audit.Enabled)
	envBool("AUDIT_LOGGING_INCLUDE_PII", &t.Audit.IncludePII)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, fmt.Errorf("http addr is required"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1) {
		errs = append(errs, fmt.Errorf("rate limit requires a positive rate and a burst of at least 1"))
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, fmt.Errorf("metrics addr is required when metrics are enabled"))
	}
	switch c.Logging.Format {
	case "", logging.FormatText, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q, must be one of: text, json", c.Logging.Format))
	}
	switch c.MCP.Transport {
	case TransportStdio, TransportStreamableHTTP:
	default:
		errs = append(errs, fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", c.MCP.Transport))
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}
	return errors.Join(errs...)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = parsed
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}
