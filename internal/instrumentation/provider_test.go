package instrumentation

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestProvider(t *testing.T, mutate func(*Config)) *Provider {
	t.Helper()
	config := DefaultConfig()
	config.ServiceVersion = "1.0.0"
	mutate(&config)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := NewProvider(ctx, config)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider
}

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestNewProvider_Disabled(t *testing.T) {
	provider := newTestProvider(t, func(c *Config) { c.Enabled = false })

	if provider.Enabled() {
		t.Error("expected provider to be disabled")
	}
	if provider.Metrics() == nil {
		t.Error("expected metrics to be non-nil even when disabled")
	}
	if provider.Audit() == nil {
		t.Error("expected audit logger to be non-nil even when disabled")
	}
	if provider.Tracer("test") == nil {
		t.Error("expected a no-op tracer")
	}

	// The no-op recorder accepts writes.
	provider.Metrics().RecordAuthorizationCheck(context.Background(), "olivia", AuthResultDenied)

	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("expected no error on shutdown, got %v", err)
	}
}

func TestNewProvider_PrometheusRegistry(t *testing.T) {
	provider := newTestProvider(t, func(*Config) {})

	if !provider.Enabled() {
		t.Fatal("expected provider to be enabled")
	}
	provider.Metrics().RecordAuthorizationCheck(context.Background(), "olivia", AuthResultGranted)

	body := scrape(t, provider.MetricsHandler())
	if !strings.Contains(body, "access_authorization_checks_total") {
		t.Errorf("scrape is missing the authorization counter:\n%s", body)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("scrape is missing the Go runtime collector")
	}
}

func TestNewProvider_RegistriesAreIndependent(t *testing.T) {
	first := newTestProvider(t, func(*Config) {})
	second := newTestProvider(t, func(*Config) {})

	if first.MetricsHandler() == nil || second.MetricsHandler() == nil {
		t.Fatal("expected metrics handlers")
	}
	if first.registry == second.registry {
		t.Error("providers must not share a registry")
	}
}

func TestNewProvider_StdoutExporter(t *testing.T) {
	provider := newTestProvider(t, func(c *Config) {
		c.Metrics.Exporter = ExporterStdout
		c.Metrics.Interval = time.Hour
		c.Tracing.Exporter = ExporterStdout
	})

	if provider.registry != nil {
		t.Error("stdout exporter should not create a prometheus registry")
	}
	if provider.MetricsHandler() == nil {
		t.Error("expected the default registry handler for push exporters")
	}

	_, span := provider.Tracer("test").Start(context.Background(), "op")
	if !span.SpanContext().IsValid() {
		t.Error("expected a recording tracer")
	}
	span.End()
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	tests := map[string]func(*Config){
		"metrics exporter":         func(c *Config) { c.Metrics.Exporter = "invalid" },
		"tracing exporter":         func(c *Config) { c.Tracing.Exporter = "invalid" },
		"otlp tracing no endpoint": func(c *Config) { c.Tracing.Exporter = ExporterOTLP },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			config := DefaultConfig()
			mutate(&config)
			if _, err := NewProvider(context.Background(), config); err == nil {
				t.Error("expected error")
			}
		})
	}
}
