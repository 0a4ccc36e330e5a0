package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatmate/chatmate/internal/store"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatmate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, store.TypeMemory, cfg.Storage.Type)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverlaysFile(t *testing.T) {
	path := writeFile(t, `
storage:
  type: mongo
  mongo:
    uri: mongodb://db:27017
    timeout: 3s
http:
  addr: ":9000"
rateLimit:
  requestsPerSecond: 2.5
  burst: 5
mcp:
  readOnly: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, store.TypeMongo, cfg.Storage.Type)
	assert.Equal(t, "mongodb://db:27017", cfg.Storage.Mongo.URI)
	assert.Equal(t, 3*time.Second, cfg.Storage.Mongo.Timeout)
	assert.Equal(t, store.DefaultMongoDatabase, cfg.Storage.Mongo.Database, "unset keys keep defaults")
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, 2.5, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.True(t, cfg.MCP.ReadOnly)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "storage: [not, a, map]"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "valkey")
	t.Setenv("VALKEY_URL", "valkey:6379")
	t.Setenv("VALKEY_DB", "3")
	t.Setenv("RATE_LIMIT_RPS", "not-a-number")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("MONGO_TIMEOUT", "1m")

	cfg := Default()
	cfg.ApplyEnv()

	assert.Equal(t, store.TypeValkey, cfg.Storage.Type)
	assert.Equal(t, "valkey:6379", cfg.Storage.Valkey.Addr)
	assert.Equal(t, 3, cfg.Storage.Valkey.DB)
	assert.Equal(t, float64(10), cfg.RateLimit.RequestsPerSecond, "unparsable values are ignored")
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, time.Minute, cfg.Storage.Mongo.Timeout)
}

func TestApplyEnv_Telemetry(t *testing.T) {
	t.Setenv("TRACING_EXPORTER", "otlp")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.5")
	t.Setenv("AUDIT_LOGGING_INCLUDE_PII", "true")

	cfg, err := Load(writeFile(t, `
telemetry:
  serviceName: chatmate-staging
  tracing:
    samplingRate: 1
`))
	require.NoError(t, err)
	cfg.ApplyEnv()

	assert.Equal(t, "chatmate-staging", cfg.Telemetry.ServiceName)
	assert.Equal(t, "otlp", cfg.Telemetry.Tracing.Exporter)
	assert.Equal(t, 0.5, cfg.Telemetry.Tracing.SamplingRate)
	assert.Equal(t, "collector:4318", cfg.Telemetry.OTLP.Endpoint)
	assert.True(t, cfg.Telemetry.Audit.IncludePII)
	assert.Equal(t, "prometheus", cfg.Telemetry.Metrics.Exporter, "unset keys keep defaults")
	require.NoError(t, cfg.Validate())
}

func TestApplyEnv_OverridesFile(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":7000")

	cfg, err := Load(writeFile(t, "http:\n  addr: \":9000\"\n"))
	require.NoError(t, err)
	cfg.ApplyEnv()

	assert.Equal(t, ":7000", cfg.HTTP.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad storage", func(c *Config) { c.Storage.Type = "sqlite" }, "invalid storage type"},
		{"no http addr", func(c *Config) { c.HTTP.Addr = "" }, "http addr is required"},
		{"zero burst", func(c *Config) { c.RateLimit.Burst = 0 }, "burst of at least 1"},
		{"zero burst disabled", func(c *Config) { c.RateLimit.Burst = 0; c.RateLimit.Enabled = false }, ""},
		{"no metrics addr", func(c *Config) { c.Metrics.Addr = "" }, "metrics addr"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"bad transport", func(c *Config) { c.MCP.Transport = "sse" }, "unsupported transport"},
		{"stdio", func(c *Config) { c.MCP.Transport = TransportStdio }, ""},
		{"bad exporter", func(c *Config) { c.Telemetry.Metrics.Exporter = "statsd" }, "telemetry: invalid metrics exporter"},
		{"bad exporter disabled", func(c *Config) { c.Telemetry.Metrics.Exporter = "statsd"; c.Telemetry.Enabled = false }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
