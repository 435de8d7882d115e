package observability

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var (
	globalMetrics *Metrics
	metricsMu     sync.RWMutex
)

// Metrics records application counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	queries      metric.Int64Counter
	fallbacks    metric.Int64Counter
	indexes      metric.Int64Counter
	llmDuration  metric.Float64Histogram
	llmTokens    metric.Int64Counter
	llmErrors    metric.Int64Counter
	httpRequests metric.Int64Counter
	httpDuration metric.Float64Histogram
}

// NewMetrics creates metrics backed by a private Prometheus registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry), otelprom.WithoutScopeInfo())
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("pdfassist")

	m := &Metrics{registry: registry, provider: provider}

	if m.queries, err = meter.Int64Counter("pdfassist_queries_total",
		metric.WithDescription("Queries answered, by status and path")); err != nil {
		return nil, fmt.Errorf("failed to create queries counter: %w", err)
	}
	if m.fallbacks, err = meter.Int64Counter("pdfassist_fallbacks_total",
		metric.WithDescription("Tool-call failure recoveries, by outcome")); err != nil {
		return nil, fmt.Errorf("failed to create fallbacks counter: %w", err)
	}
	if m.indexes, err = meter.Int64Counter("pdfassist_index_total",
		metric.WithDescription("Indexing operations, by status")); err != nil {
		return nil, fmt.Errorf("failed to create index counter: %w", err)
	}
	if m.llmDuration, err = meter.Float64Histogram("pdfassist_llm_request_duration_seconds",
		metric.WithDescription("LLM request duration in seconds")); err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}
	if m.llmTokens, err = meter.Int64Counter("pdfassist_llm_tokens_total",
		metric.WithDescription("Tokens used by LLM calls, by direction")); err != nil {
		return nil, fmt.Errorf("failed to create llm tokens counter: %w", err)
	}
	if m.llmErrors, err = meter.Int64Counter("pdfassist_llm_errors_total",
		metric.WithDescription("Failed LLM calls")); err != nil {
		return nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}
	if m.httpRequests, err = meter.Int64Counter("pdfassist_http_requests_total",
		metric.WithDescription("HTTP requests, by route and status code")); err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}
	if m.httpDuration, err = meter.Float64Histogram("pdfassist_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds")); err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordQuery(ctx context.Context, status, path string) {
	if m == nil {
		return
	}
	m.queries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("path", path),
	))
}

func (m *Metrics) RecordFallback(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordIndex(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.indexes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *Metrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	m.llmTokens.Add(ctx, int64(inputTokens), metric.WithAttributes(
		attribute.String("model", model), attribute.String("direction", "input")))
	m.llmTokens.Add(ctx, int64(outputTokens), metric.WithAttributes(
		attribute.String("model", model), attribute.String("direction", "output")))
	if err != nil {
		m.llmErrors.Add(ctx, 1, attrs)
	}
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("route", route),
		attribute.Int("code", code),
	))
	m.httpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("route", route)))
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

func SetGlobalMetrics(m *Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the installed metrics, possibly nil.
func GetGlobalMetrics() *Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}
