package observability

import (
	"fmt"
	"time"
)

// Config configures tracing and metrics.
type Config struct {
	Tracing TracingConfig `yaml:"tracing,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`

	// Exporter is "otlp" (gRPC) or "stdout".
	Exporter string `yaml:"exporter,omitempty"`

	// Endpoint is the OTLP collector address, e.g. localhost:4317.
	Endpoint string `yaml:"endpoint,omitempty"`

	// SamplingRate is the fraction of traces sampled, 0.0 to 1.0.
	SamplingRate float64 `yaml:"sampling_rate,omitempty"`

	ServiceName string `yaml:"service_name,omitempty"`

	// Insecure disables TLS for the OTLP connection.
	Insecure *bool `yaml:"insecure,omitempty"`

	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
}

func (c *Config) SetDefaults() {
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "otlp"
	}
	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = "localhost:4317"
	}
	if c.Tracing.SamplingRate == 0 {
		c.Tracing.SamplingRate = 1.0
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "pdfassist"
	}
	if c.Tracing.Insecure == nil {
		insecure := true
		c.Tracing.Insecure = &insecure
	}
	if c.Tracing.Timeout == 0 {
		c.Tracing.Timeout = 10 * time.Second
	}
}

func (c *Config) Validate() error {
	switch c.Tracing.Exporter {
	case "otlp", "stdout":
	default:
		return fmt.Errorf("unsupported trace exporter %q (valid: otlp, stdout)", c.Tracing.Exporter)
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("sampling_rate must be between 0 and 1")
	}
	return nil
}
