package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// DefaultMetricsInterval is how often metrics are pushed to the OTLP collector
const DefaultMetricsInterval = 60 * time.Second

// MeterProviderOption adjusts how NewMeterProvider exports metrics
type MeterProviderOption func(*meterProviderOptions)

type meterProviderOptions struct {
	registerer prometheus.Registerer
	readers    []sdkmetric.Reader
	interval   time.Duration
}

// WithPrometheusRegisterer sets the registry the Prometheus exporter registers with.
// Required when metrics.prometheus is enabled.
func WithPrometheusRegisterer(reg prometheus.Registerer) MeterProviderOption {
	return func(o *meterProviderOptions) {
		o.registerer = reg
	}
}

// WithReader attaches an additional reader to the provider
func WithReader(reader sdkmetric.Reader) MeterProviderOption {
	return func(o *meterProviderOptions) {
		o.readers = append(o.readers, reader)
	}
}

// WithPushInterval sets the OTLP push interval
func WithPushInterval(interval time.Duration) MeterProviderOption {
	return func(o *meterProviderOptions) {
		if interval > 0 {
			o.interval = interval
		}
	}
}

// NewMeterProvider builds the meter provider described by cfg. Unless both
// telemetry and metrics are enabled it returns a no-op provider.
// The caller shuts down the returned SDK provider.
func NewMeterProvider(ctx context.Context, cfg *Config, opts ...MeterProviderOption) (metric.MeterProvider, error) {
	if !cfg.MetricsEnabled() {
		slog.Debug("Metrics disabled, using no-op meter provider")
		return noop.NewMeterProvider(), nil
	}

	o := &meterProviderOptions{interval: DefaultMetricsInterval}
	for _, opt := range opts {
		opt(o)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	providerOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.Metrics.GetOTLP() {
		exporter, err := newOTLPMetricExporter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		providerOpts = append(providerOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(o.interval)),
		))
	}

	if cfg.PrometheusEnabled() {
		if o.registerer == nil {
			return nil, fmt.Errorf("prometheus metrics enabled but no registerer provided")
		}
		exporter, err := otelprom.New(otelprom.WithRegisterer(o.registerer))
		if err != nil {
			return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
		}
		providerOpts = append(providerOpts, sdkmetric.WithReader(exporter))
	}

	for _, reader := range o.readers {
		providerOpts = append(providerOpts, sdkmetric.WithReader(reader))
	}

	slog.Info("Metrics initialized",
		"endpoint", cfg.GetEndpoint(),
		"otlp", cfg.Metrics.GetOTLP(),
		"prometheus", cfg.Metrics.Prometheus,
	)

	return sdkmetric.NewMeterProvider(providerOpts...), nil
}

func newOTLPMetricExporter(ctx context.Context, cfg *Config) (sdkmetric.Exporter, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.GetEndpoint())}
	if cfg.GetInsecure() {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}
	return exporter, nil
}
