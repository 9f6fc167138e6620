package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewMeterProvider_Disabled(t *testing.T) {
	t.Parallel()

	for _, cfg := range []*Config{
		nil,
		{Metrics: &MetricsConfig{Enabled: true}},
		{Enabled: true, Metrics: &MetricsConfig{}},
	} {
		mp, err := NewMeterProvider(context.Background(), cfg, WithReader(sdkmetric.NewManualReader()))
		require.NoError(t, err)
		_, ok := mp.(noop.MeterProvider)
		assert.True(t, ok, "expected no-op meter provider for %+v", cfg)
	}
}

func TestNewMeterProvider_RecordsSyncMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp, err := NewMeterProvider(context.Background(),
		&Config{
			Enabled:     true,
			ServiceName: "rostertrack-test",
			Metrics:     &MetricsConfig{Enabled: true, OTLP: ptr(false)},
		},
		WithReader(reader),
	)
	require.NoError(t, err)

	sdkMP, ok := mp.(*sdkmetric.MeterProvider)
	require.True(t, ok, "expected SDK meter provider")
	t.Cleanup(func() { _ = sdkMP.Shutdown(context.Background()) })

	metrics, err := NewSyncMetrics(mp)
	require.NoError(t, err)
	metrics.RecordFailure(context.Background(), "12345", "FetchFailed")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	service, ok := rm.Resource.Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "rostertrack-test", service.AsString())

	failures := findMetric(t, reader, "rostertrack_sync_failures_total")
	sum, ok := failures.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
}

func TestMeterProviderOptions(t *testing.T) {
	t.Parallel()

	o := &meterProviderOptions{interval: DefaultMetricsInterval}
	WithPushInterval(0)(o)
	assert.Equal(t, DefaultMetricsInterval, o.interval, "non-positive intervals are ignored")

	WithPushInterval(DefaultMetricsInterval / 4)(o)
	assert.Equal(t, DefaultMetricsInterval/4, o.interval)
}
