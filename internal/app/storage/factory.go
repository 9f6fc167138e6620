// Package storage builds the state store selected by the configuration.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/rostertrack/rostertrack/internal/config"
	"github.com/rostertrack/rostertrack/internal/storage"
	"github.com/rostertrack/rostertrack/internal/storage/memory"
	"github.com/rostertrack/rostertrack/internal/storage/postgres"
	"github.com/rostertrack/rostertrack/internal/storage/sqlite"
)

// Option configures store creation
type Option func(*options)

type options struct {
	tracer trace.Tracer
}

// WithTracer sets the OpenTelemetry tracer for stores that emit spans.
// If not set, tracing will be disabled (no-op).
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// NewStore creates the store for the configured storage type.
// The caller owns the returned store and must Close it.
func NewStore(ctx context.Context, cfg *config.Config, opts ...Option) (storage.Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	switch storageType := cfg.GetStorageType(); storageType {
	case config.StorageTypeMemory:
		slog.Info("Using in-memory storage, state will not survive a restart")
		return memory.New(), nil
	case config.StorageTypeSQLite:
		return sqlite.Open(ctx, cfg.GetSQLitePath())
	case config.StorageTypePostgres:
		if cfg.Database == nil {
			return nil, fmt.Errorf("database configuration is required for postgres storage type")
		}
		pool, err := buildDatabaseConnectionPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to create database connection pool: %w", err)
		}
		return postgres.New(pool, postgres.WithTracer(o.tracer)), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", storageType)
	}
}
