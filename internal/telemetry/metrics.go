package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/rostertrack/rostertrack/sync"
)

// SyncMetrics holds the OpenTelemetry instruments for reconciliation runs
type SyncMetrics struct {
	syncDuration       metric.Float64Histogram
	participantChanges metric.Int64Counter
	participantsActive metric.Int64Gauge
	fetchFailures      metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"rostertrack_sync_duration_seconds",
		metric.WithDescription("Duration of tournament reconciliation runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	participantChanges, err := meter.Int64Counter(
		"rostertrack_participant_changes_total",
		metric.WithDescription("Number of participant transitions recorded in the change log"),
		metric.WithUnit("{change}"),
	)
	if err != nil {
		return nil, err
	}

	participantsActive, err := meter.Int64Gauge(
		"rostertrack_participants_active",
		metric.WithDescription("Number of active participants per tournament after the last successful run"),
		metric.WithUnit("{participant}"),
	)
	if err != nil {
		return nil, err
	}

	fetchFailures, err := meter.Int64Counter(
		"rostertrack_sync_failures_total",
		metric.WithDescription("Number of failed reconciliation runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration:       syncDuration,
		participantChanges: participantChanges,
		participantsActive: participantsActive,
		fetchFailures:      fetchFailures,
	}, nil
}

// RecordSyncDuration records the duration of a reconciliation run for a tournament
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, tournamentID string, duration time.Duration, success bool) {
	if m == nil || m.syncDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tournament", tournamentID),
		attribute.Bool("success", success),
	}

	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordChanges records the joined and left transitions of a run
func (m *SyncMetrics) RecordChanges(ctx context.Context, tournamentID string, joined, left int) {
	if m == nil || m.participantChanges == nil {
		return
	}

	if joined > 0 {
		m.participantChanges.Add(ctx, int64(joined), metric.WithAttributes(
			attribute.String("tournament", tournamentID),
			attribute.String("change_type", "joined"),
		))
	}
	if left > 0 {
		m.participantChanges.Add(ctx, int64(left), metric.WithAttributes(
			attribute.String("tournament", tournamentID),
			attribute.String("change_type", "left"),
		))
	}
}

// RecordActiveParticipants records the current number of active participants in a tournament
func (m *SyncMetrics) RecordActiveParticipants(ctx context.Context, tournamentID string, count int) {
	if m == nil || m.participantsActive == nil {
		return
	}

	m.participantsActive.Record(ctx, int64(count), metric.WithAttributes(
		attribute.String("tournament", tournamentID),
	))
}

// RecordFailure counts a failed run, labelled with the failure reason
func (m *SyncMetrics) RecordFailure(ctx context.Context, tournamentID, reason string) {
	if m == nil || m.fetchFailures == nil {
		return
	}

	m.fetchFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tournament", tournamentID),
		attribute.String("reason", reason),
	))
}
