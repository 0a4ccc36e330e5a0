package instrumentation

import (
	"errors"
	"fmt"
	"time"
)

// Config configures telemetry export. It is the telemetry section of the
// server configuration file; environment overrides are applied by the config
// package.
type Config struct {
	// Enabled turns metrics and tracing on. The audit logger exists either way.
	Enabled bool `yaml:"enabled"`

	ServiceName string `yaml:"serviceName"`
	// ServiceVersion is set from the build, not from configuration.
	ServiceVersion string `yaml:"-"`
	// InstanceID defaults to the hostname, which is the pod name on Kubernetes.
	InstanceID string `yaml:"instanceID"`

	Metrics MetricsExportConfig `yaml:"metrics"`
	Tracing TracingConfig       `yaml:"tracing"`
	OTLP    OTLPConfig          `yaml:"otlp"`
	Audit   AuditLoggingConfig  `yaml:"audit"`
}

// MetricsExportConfig selects how metrics leave the process.
type MetricsExportConfig struct {
	// Exporter is prometheus, otlp or stdout.
	Exporter string `yaml:"exporter"`
	// Interval is the push interval for the otlp and stdout exporters.
	Interval time.Duration `yaml:"interval"`
	// DetailedLabels adds owner usernames to access metrics. Keep it off in
	// production.
	DetailedLabels bool `yaml:"detailedLabels"`
}

// TracingConfig selects the span exporter and sampling.
type TracingConfig struct {
	// Exporter is otlp, stdout or none.
	Exporter     string  `yaml:"exporter"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// OTLPConfig is shared by the otlp metrics and trace exporters.
type OTLPConfig struct {
	// Endpoint is host:port without a scheme.
	Endpoint string `yaml:"endpoint"`
	// Insecure disables TLS. Spans carry operation metadata, so use it only
	// against a local collector.
	Insecure bool `yaml:"insecure"`
}

// AuditLoggingConfig holds configuration for audit logging.
type AuditLoggingConfig struct {
	Enabled bool `yaml:"enabled"`

	// IncludePII logs plain owner and target usernames instead of hashes.
	// Audit logs must then be stored with matching access controls.
	IncludePII bool `yaml:"includePII"`
}

// DefaultConfig returns prometheus metrics, no tracing and hashed audit logs.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		ServiceName: "chatmate",
		Metrics: MetricsExportConfig{
			Exporter: ExporterPrometheus,
			Interval: DefaultMetricInterval,
		},
		Tracing: TracingConfig{
			Exporter:     ExporterNone,
			SamplingRate: 0.1,
		},
		Audit: AuditLoggingConfig{
			Enabled: true,
		},
	}
}

// Validate checks exporter names, the sampling rate and OTLP settings.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs []error
	switch c.Metrics.Exporter {
	case ExporterPrometheus, ExporterStdout:
	case ExporterOTLP:
		if c.OTLP.Endpoint == "" {
			errs = append(errs, errors.New("OTLP endpoint is required when using OTLP metrics exporter"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.Metrics.Exporter))
	}

	switch c.Tracing.Exporter {
	case ExporterNone, ExporterStdout:
	case ExporterOTLP:
		if c.OTLP.Endpoint == "" {
			errs = append(errs, errors.New("OTLP endpoint is required when using OTLP tracing exporter"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.Tracing.Exporter))
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %g", c.Tracing.SamplingRate))
	}
	return errors.Join(errs...)
}

// Constants for metric label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusUnknown = "unknown"

	// Authorization check results
	AuthResultOpen    = "open"
	AuthResultSelf    = "self"
	AuthResultGranted = "granted"
	AuthResultDenied  = "denied"

	// Storage backend names
	BackendMemory = "memory"
	BackendMongo  = "mongo"
	BackendValkey = "valkey"

	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	DefaultMetricInterval = 10 * time.Second
)
