package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/rostertrack/rostertrack/internal/api"
	appstorage "github.com/rostertrack/rostertrack/internal/app/storage"
	"github.com/rostertrack/rostertrack/internal/config"
	"github.com/rostertrack/rostertrack/internal/httpclient"
	"github.com/rostertrack/rostertrack/internal/reconcile"
	"github.com/rostertrack/rostertrack/internal/sources"
	"github.com/rostertrack/rostertrack/internal/storage"
	"github.com/rostertrack/rostertrack/internal/storage/postgres"
	pkgsync "github.com/rostertrack/rostertrack/internal/sync"
	"github.com/rostertrack/rostertrack/internal/sync/coordinator"
	"github.com/rostertrack/rostertrack/internal/telemetry"
	"github.com/rostertrack/rostertrack/internal/versions"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// RosterAppOptions is a function that configures the roster app builder
type RosterAppOptions func(*rosterAppConfig) error

// rosterAppConfig collects everything needed to build a RosterApp.
// It supports dependency injection for testing while providing sensible defaults for production
type rosterAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	store       storage.Store
	fetcher     sources.Fetcher
	syncManager pkgsync.Manager

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Telemetry components
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metricsHandler http.Handler
}

func baseConfig(opts ...RosterAppOptions) (*rosterAppConfig, error) {
	cfg := &rosterAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// NewRosterApp builds the store, sync components and HTTP server of a long running tracker
func NewRosterApp(
	ctx context.Context,
	opts ...RosterAppOptions,
) (*RosterApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	components, err := buildSyncComponents(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	httpServer, err := buildHTTPServer(ctx, cfg, components)
	if err != nil {
		_ = components.Close()
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)

	return &RosterApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// BuildComponents builds the store and sync components without an HTTP server.
// The caller must Close the returned components.
func BuildComponents(ctx context.Context, opts ...RosterAppOptions) (*AppComponents, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	return buildSyncComponents(ctx, cfg)
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		parts := strings.SplitN(addr, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		host := parts[0]
		port := parts[1]

		if port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares, replacing the defaults
func WithMiddlewares(mw ...func(http.Handler) http.Handler) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithStore allows injecting a state store. The app takes ownership and closes it on Stop.
func WithStore(s storage.Store) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.store = s
		return nil
	}
}

// WithFetcher allows injecting a roster fetcher (for testing)
func WithFetcher(f sources.Fetcher) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.fetcher = f
		return nil
	}
}

// WithSyncManager allows injecting a custom sync manager (for testing)
func WithSyncManager(sm pkgsync.Manager) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.syncManager = sm
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for HTTP and sync metrics
func WithMeterProvider(mp metric.MeterProvider) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider for HTTP, sync and store spans
func WithTracerProvider(tp trace.TracerProvider) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}

// WithMetricsHandler mounts a Prometheus scrape handler at /metrics
func WithMetricsHandler(h http.Handler) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.metricsHandler = h
		return nil
	}
}

// buildSyncComponents builds the store, sync manager and coordinator, and
// starts tracking the tournaments listed in the configuration
func buildSyncComponents(
	ctx context.Context,
	b *rosterAppConfig,
) (_ *AppComponents, retErr error) {
	slog.Info("Initializing sync components")

	if b.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if b.store == nil {
		var storeOpts []appstorage.Option
		if b.tracerProvider != nil {
			storeOpts = append(storeOpts, appstorage.WithTracer(b.tracerProvider.Tracer(postgres.TracerName)))
		}
		store, err := appstorage.NewStore(ctx, b.config, storeOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create store: %w", err)
		}
		b.store = store
	}

	defer func() {
		if retErr != nil {
			if err := b.store.Close(); err != nil {
				slog.Warn("Failed to close store", "error", err)
			}
		}
	}()

	if b.syncManager == nil {
		manager, err := buildSyncManager(b)
		if err != nil {
			return nil, err
		}
		b.syncManager = manager
	}

	if err := InitializeTrackedTournaments(ctx, b.config, b.syncManager); err != nil {
		return nil, fmt.Errorf("failed to initialize tracked tournaments: %w", err)
	}

	syncCoordinator := coordinator.New(b.syncManager, b.store, &b.config.Sync)
	slog.Info("Sync components initialized successfully")

	return &AppComponents{
		Store:           b.store,
		SyncManager:     b.syncManager,
		SyncCoordinator: syncCoordinator,
	}, nil
}

// buildSyncManager wires the roster fetcher, rejoin policy and telemetry into a sync manager
func buildSyncManager(b *rosterAppConfig) (pkgsync.Manager, error) {
	if b.fetcher == nil {
		client := httpclient.NewDefaultClient(
			b.config.Source.GetTimeout(),
			httpclient.WithInsecureSkipVerify(b.config.Source.InsecureSkipVerify),
			httpclient.WithUserAgent("rostertrack/"+versions.GetVersionInfo().Version),
		)
		b.fetcher = sources.NewAPIFetcher(
			client,
			b.config.Source.GetEndpoint(),
			sources.WithMaxRetries(b.config.Source.GetMaxRetries()),
		)
	}

	policy, err := reconcile.ParseRejoinPolicy(b.config.Sync.GetRejoinPolicy())
	if err != nil {
		return nil, fmt.Errorf("invalid rejoin policy: %w", err)
	}

	managerOpts := []pkgsync.Option{pkgsync.WithRejoinPolicy(policy)}

	if b.meterProvider != nil {
		syncMetrics, err := telemetry.NewSyncMetrics(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create sync metrics: %w", err)
		}
		if syncMetrics != nil {
			managerOpts = append(managerOpts, pkgsync.WithMetrics(syncMetrics))
			slog.Info("Sync metrics enabled")
		}
	}

	if b.tracerProvider != nil {
		managerOpts = append(managerOpts, pkgsync.WithTracer(b.tracerProvider.Tracer(pkgsync.TracerName)))
	}

	return pkgsync.NewDefaultSyncManager(b.fetcher, b.store, managerOpts...), nil
}

// buildHTTPServer builds the HTTP server with router and middleware
//
//nolint:unparam // we prefer having a similar interface
func buildHTTPServer(
	_ context.Context,
	b *rosterAppConfig,
	components *AppComponents,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	// Use default middlewares if not provided
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Metrics and tracing wrap everything else so rejected requests are observed too
	if b.tracerProvider != nil {
		b.middlewares = append([]func(http.Handler) http.Handler{telemetry.TracingMiddleware(b.tracerProvider)}, b.middlewares...)
		slog.Info("HTTP tracing middleware enabled")
	}
	if b.meterProvider != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		if metricsMiddleware != nil {
			b.middlewares = append([]func(http.Handler) http.Handler{metricsMiddleware}, b.middlewares...)
			slog.Info("HTTP metrics middleware enabled")
		}
	}

	router := api.NewServer(
		components.SyncManager,
		components.SyncCoordinator,
		components.Store,
		api.WithMiddlewares(b.middlewares...),
		api.WithMetricsHandler(b.metricsHandler),
	)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
