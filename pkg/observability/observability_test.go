package observability

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	assert.Equal(t, "otlp", cfg.Tracing.Exporter)
	assert.Equal(t, "localhost:4317", cfg.Tracing.Endpoint)
	assert.Equal(t, 1.0, cfg.Tracing.SamplingRate)
	assert.Equal(t, "pdfassist", cfg.Tracing.ServiceName)
	require.NotNil(t, cfg.Tracing.Insecure)
	assert.True(t, *cfg.Tracing.Insecure)
	assert.NoError(t, cfg.Validate())

	cfg.Tracing.Exporter = "zipkin"
	assert.Error(t, cfg.Validate())
}

func TestMetricsExposition(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	ctx := context.Background()
	m.RecordQuery(ctx, "ok", "fallback")
	m.RecordFallback(ctx, "recovered")
	m.RecordIndex(ctx, "error")
	m.RecordLLMCall(ctx, "llama-3.3-70b-versatile", 120*time.Millisecond, 10, 20, errors.New("boom"))
	m.RecordHTTPRequest(ctx, "/api/query", 200, time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	text := string(body)
	assert.Contains(t, text, "pdfassist_queries_total")
	assert.Contains(t, text, `path="fallback"`)
	assert.Contains(t, text, "pdfassist_fallbacks_total")
	assert.Contains(t, text, "pdfassist_index_total")
	assert.Contains(t, text, "pdfassist_llm_errors_total")
	assert.Contains(t, text, "pdfassist_http_requests_total")
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordQuery(ctx, "ok", "primary")
		m.RecordFallback(ctx, "skipped")
		m.RecordIndex(ctx, "ok")
		m.RecordLLMCall(ctx, "m", time.Second, 1, 1, nil)
		m.RecordHTTPRequest(ctx, "/", 200, time.Second)
	})
	assert.NoError(t, m.Shutdown(ctx))
}

func TestManagerDisabled(t *testing.T) {
	mgr := NewManager(Config{})
	require.NoError(t, mgr.Initialize(context.Background()))

	assert.Nil(t, mgr.Metrics())
	_, span := mgr.Tracer("test").Start(context.Background(), "noop")
	span.End()
	assert.NoError(t, mgr.Shutdown(context.Background()))
}
