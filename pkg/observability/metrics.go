// Package observability exposes engine metrics through OpenTelemetry with a
// Prometheus exporter. The engine records through the Metrics interface;
// NoopMetrics is used when metrics are disabled.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/latticeai/lattice/pkg/config"
)

// Metrics records engine activity.
type Metrics interface {
	// RecordQuery records one completed query.
	RecordQuery(ctx context.Context, mode string, duration time.Duration, err error)

	// RecordCacheLookup records a response or keyword cache lookup.
	RecordCacheLookup(ctx context.Context, cacheType string, hit bool)

	// RecordLLMCall records one LLM call with its token usage.
	RecordLLMCall(ctx context.Context, operation string, duration time.Duration, tokens int, err error)
}

// PrometheusMetrics implements Metrics on OTel instruments backed by the
// Prometheus exporter.
type PrometheusMetrics struct {
	queryDuration    metric.Float64Histogram
	queriesTotal     metric.Int64Counter
	queryErrorsTotal metric.Int64Counter

	cacheLookupsTotal metric.Int64Counter

	llmDuration    metric.Float64Histogram
	llmTokensTotal metric.Int64Counter
	llmErrorsTotal metric.Int64Counter
}

var _ Metrics = (*PrometheusMetrics)(nil)

// InitMetrics builds the meter provider and instruments. Disabled config
// yields NoopMetrics and no HTTP handler.
func InitMetrics(cfg config.MetricsConfig) (Metrics, http.Handler, error) {
	if !cfg.Enabled {
		return NoopMetrics{}, nil, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("lattice")

	m := &PrometheusMetrics{}

	m.queryDuration, err = meter.Float64Histogram(
		"lattice_query_duration_seconds",
		metric.WithDescription("Query duration in seconds"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create query duration histogram: %w", err)
	}

	m.queriesTotal, err = meter.Int64Counter(
		"lattice_queries_total",
		metric.WithDescription("Total queries"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create queries counter: %w", err)
	}

	m.queryErrorsTotal, err = meter.Int64Counter(
		"lattice_query_errors_total",
		metric.WithDescription("Total failed queries"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create query errors counter: %w", err)
	}

	m.cacheLookupsTotal, err = meter.Int64Counter(
		"lattice_cache_lookups_total",
		metric.WithDescription("Cache lookups by type and outcome"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create cache lookups counter: %w", err)
	}

	m.llmDuration, err = meter.Float64Histogram(
		"lattice_llm_call_duration_seconds",
		metric.WithDescription("LLM call duration in seconds"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}

	m.llmTokensTotal, err = meter.Int64Counter(
		"lattice_llm_tokens_total",
		metric.WithDescription("Total LLM tokens used"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create llm tokens counter: %w", err)
	}

	m.llmErrorsTotal, err = meter.Int64Counter(
		"lattice_llm_errors_total",
		metric.WithDescription("Total failed LLM calls"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}

	return m, promhttp.Handler(), nil
}

// RecordQuery implements Metrics.
func (m *PrometheusMetrics) RecordQuery(ctx context.Context, mode string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("mode", mode))
	m.queryDuration.Record(ctx, duration.Seconds(), attrs)
	m.queriesTotal.Add(ctx, 1, attrs)
	if err != nil {
		m.queryErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordCacheLookup implements Metrics.
func (m *PrometheusMetrics) RecordCacheLookup(ctx context.Context, cacheType string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookupsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache_type", cacheType),
		attribute.String("outcome", outcome),
	))
}

// RecordLLMCall implements Metrics.
func (m *PrometheusMetrics) RecordLLMCall(ctx context.Context, operation string, duration time.Duration, tokens int, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	if tokens > 0 {
		m.llmTokensTotal.Add(ctx, int64(tokens), attrs)
	}
	if err != nil {
		m.llmErrorsTotal.Add(ctx, 1, attrs)
	}
}

// NoopMetrics records nothing.
type NoopMetrics struct{}

var _ Metrics = NoopMetrics{}

func (NoopMetrics) RecordQuery(_ context.Context, _ string, _ time.Duration, _ error) {}

func (NoopMetrics) RecordCacheLookup(_ context.Context, _ string, _ bool) {}

func (NoopMetrics) RecordLLMCall(_ context.Context, _ string, _ time.Duration, _ int, _ error) {}
