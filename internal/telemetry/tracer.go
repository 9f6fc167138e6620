package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerProviderOption adjusts how NewTracerProvider exports spans
type TracerProviderOption func(*tracerProviderOptions)

type tracerProviderOptions struct {
	exporter sdktrace.SpanExporter
}

// WithSpanExporter replaces the OTLP HTTP exporter
func WithSpanExporter(exporter sdktrace.SpanExporter) TracerProviderOption {
	return func(o *tracerProviderOptions) {
		o.exporter = exporter
	}
}

// NewTracerProvider builds the tracer provider described by cfg. Unless both
// telemetry and tracing are enabled it returns a no-op provider.
// The caller shuts down the returned SDK provider.
func NewTracerProvider(ctx context.Context, cfg *Config, opts ...TracerProviderOption) (trace.TracerProvider, error) {
	if !cfg.TracingEnabled() {
		slog.Debug("Tracing disabled, using no-op tracer provider")
		return noop.NewTracerProvider(), nil
	}

	o := &tracerProviderOptions{}
	for _, opt := range opts {
		opt(o)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	exporter := o.exporter
	if exporter == nil {
		exporter, err = newOTLPSpanExporter(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(newSampler(cfg.Tracing)),
	)

	if cfg.GetInsecure() {
		slog.Warn("Tracing over plain HTTP, use only for local collectors")
	}
	slog.Info("Tracing initialized",
		"endpoint", cfg.GetEndpoint(),
		"sampling_ratio", cfg.Tracing.GetSampling(),
	)

	return tp, nil
}

// newSampler samples new traces at the configured ratio. Spans under a
// remote parent follow the parent's decision, so a manual trigger sent with
// a sampled traceparent keeps its sync and store spans.
func newSampler(tc *TracingConfig) sdktrace.Sampler {
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tc.GetSampling()))
}

func newOTLPSpanExporter(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.GetEndpoint())}
	if cfg.GetInsecure() {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}
	return exporter, nil
}
