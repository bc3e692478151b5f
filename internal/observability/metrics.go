// Package observability wires the metric pipeline: an OpenTelemetry meter
// exported through Prometheus, scraped from a local HTTP endpoint.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"mnemo/internal/logging"
)

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// Metrics manages the assistant's counters and histograms. A nil or
// disabled collector is safe to record into.
type Metrics struct {
	meter metric.Meter

	genRequests    metric.Int64Counter
	genLatency     metric.Float64Histogram
	genFallbacks   metric.Int64Counter
	consolidations metric.Int64Counter
	daysSummarized metric.Int64Counter
	updates        metric.Int64Counter

	prometheusServer *http.Server
	logger           *logging.Logger
}

// NewMetrics creates the collector. When disabled it returns an inert
// collector that records nothing.
func NewMetrics(config MetricsConfig) (*Metrics, error) {
	if !config.Enabled {
		return &Metrics{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter("mnemo")
	m := &Metrics{
		meter:  meter,
		logger: logging.NewComponentLogger("metrics"),
	}

	if m.genRequests, err = meter.Int64Counter(
		"mnemo.generation.requests.total",
		metric.WithDescription("Total generation requests by provider and outcome"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("create generation counter: %w", err)
	}

	if m.genLatency, err = meter.Float64Histogram(
		"mnemo.generation.latency",
		metric.WithDescription("Generation request latency"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("create latency histogram: %w", err)
	}

	if m.genFallbacks, err = meter.Int64Counter(
		"mnemo.generation.fallbacks.total",
		metric.WithDescription("Generations answered by the backup provider"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("create fallback counter: %w", err)
	}

	if m.consolidations, err = meter.Int64Counter(
		"mnemo.consolidation.runs.total",
		metric.WithDescription("Memory consolidation passes"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, fmt.Errorf("create consolidation counter: %w", err)
	}

	if m.daysSummarized, err = meter.Int64Counter(
		"mnemo.consolidation.days.total",
		metric.WithDescription("Day summaries generated during consolidation"),
		metric.WithUnit("{day}"),
	); err != nil {
		return nil, fmt.Errorf("create days counter: %w", err)
	}

	if m.updates, err = meter.Int64Counter(
		"mnemo.updates.total",
		metric.WithDescription("Chat updates processed"),
		metric.WithUnit("{update}"),
	); err != nil {
		return nil, fmt.Errorf("create updates counter: %w", err)
	}

	if config.PrometheusPort > 0 {
		m.startPrometheusServer(config.PrometheusPort)
	}

	return m, nil
}

func (m *Metrics) startPrometheusServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())

	m.prometheusServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		m.logger.Info("Prometheus metrics on :%d/metrics", port)
		if err := m.prometheusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics server failed: %v", err)
		}
	}()
}

// Shutdown stops the scrape endpoint.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.prometheusServer == nil {
		return nil
	}
	return m.prometheusServer.Shutdown(ctx)
}

// RecordGeneration records one dispatch outcome.
func (m *Metrics) RecordGeneration(ctx context.Context, provider string, usedBackup bool, err error, duration time.Duration) {
	if m == nil || m.genRequests == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	)
	m.genRequests.Add(ctx, 1, attrs)
	m.genLatency.Record(ctx, duration.Seconds(), attrs)
	if usedBackup {
		m.genFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
	}
}

// RecordConsolidation records one consolidation pass.
func (m *Metrics) RecordConsolidation(ctx context.Context, daysSummarized int, err error) {
	if m == nil || m.consolidations == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.consolidations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if daysSummarized > 0 {
		m.daysSummarized.Add(ctx, int64(daysSummarized))
	}
}

// RecordUpdate records one processed chat update.
func (m *Metrics) RecordUpdate(ctx context.Context, kind string) {
	if m == nil || m.updates == nil {
		return
	}
	m.updates.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
