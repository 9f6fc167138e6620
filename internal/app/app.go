// Package app provides application lifecycle management for the roster tracker.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/rostertrack/rostertrack/internal/config"
)

// RosterApp encapsulates all components needed to run the tracker API server
// It provides lifecycle management and graceful shutdown capabilities
type RosterApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
}

// Start starts the application components (HTTP server and background sync)
// This method blocks until the HTTP server stops or encounters an error
func (app *RosterApp) Start() error {
	go func() {
		if err := app.components.SyncCoordinator.Start(app.ctx); err != nil {
			slog.Error("Sync coordinator failed", "error", err)
		}
	}()

	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the application with the given timeout.
// It stops the sync coordinator, shuts down the HTTP server and closes the store.
func (app *RosterApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	// Stop sync coordinator first so no batch writes after the store closes
	if err := app.components.SyncCoordinator.Stop(); err != nil {
		slog.Error("Failed to stop sync coordinator", "error", err)
	}

	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	shutdownErr := app.httpServer.Shutdown(shutdownCtx)

	app.closeOnce.Do(func() {
		if err := app.components.Close(); err != nil {
			slog.Error("Failed to close store", "error", err)
		}
	})

	if shutdownErr != nil {
		return fmt.Errorf("server forced to shutdown: %w", shutdownErr)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *RosterApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *RosterApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Components returns the store and sync components backing the app
func (app *RosterApp) Components() *AppComponents {
	return app.components
}
