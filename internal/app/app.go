package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/specialistvlad/scriptloader/internal/config"
	"github.com/specialistvlad/scriptloader/internal/ctxlog"
	"github.com/specialistvlad/scriptloader/internal/manager"
	"github.com/specialistvlad/scriptloader/internal/nativeexec"
	"github.com/specialistvlad/scriptloader/internal/storage"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx        context.Context
	outW       io.Writer
	resultW    io.Writer
	logger     *slog.Logger
	config     *Config
	manifest   *config.Model
	storage    storage.Storage
	executor   *nativeexec.Executor
	manager    *manager.Manager
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It loads the
// manifests, builds storage and the native executor, and registers every
// declared resolver on a fresh manager. Wiring failures are fatal startup
// errors and panic.
func NewApp(outW io.Writer, cfg *Config, loaders ...config.Loader) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	if len(loaders) == 0 {
		loaders = coreLoaders
	}
	manifest, err := config.Load(ctx, loaders, cfg.ConfigPath)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	logger.Debug("Manifest loaded and translated into unified model.")

	app := &App{
		ctx:      ctx,
		outW:     outW,
		resultW:  outW,
		logger:   logger,
		config:   cfg,
		manifest: manifest,
	}
	if err := app.wire(ctx); err != nil {
		panic(err)
	}
	logger.Debug("Application wired.", "resolvers", len(manifest.Remotes))
	return app
}

// Manager returns the application's script manager.
func (a *App) Manager() *manager.Manager {
	return a.manager
}

// SetOutput redirects command results, such as resolve's JSON, away from
// the log writer.
func (a *App) SetOutput(w io.Writer) {
	a.resultW = w
}

// Executor returns the native executor. This is primarily for testing.
func (a *App) Executor() *nativeexec.Executor {
	return a.executor
}

// Close releases the executor and stops the health check server.
func (a *App) Close() error {
	err := a.closeHealthCheckServer()
	if a.executor != nil {
		if cerr := a.executor.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
