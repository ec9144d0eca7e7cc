package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"pdmflow/app/handler"
	"pdmflow/internal/jobs"
	"pdmflow/internal/pipeline"
	"pdmflow/internal/service"
	"pdmflow/pkg/config"
	"pdmflow/pkg/interfaces"
	"pdmflow/pkg/logger"
	asynqqueue "pdmflow/pkg/queue/asynq"
	mysqlstore "pdmflow/pkg/store/mysql"
	redisstore "pdmflow/pkg/store/redis"

	"github.com/gin-gonic/gin"
)

// Application manages the lifecycle of the entire application
type Application struct {
	configPath string

	// Infrastructure components
	config      *config.Config
	log         *logger.Logger
	mysqlRepo   *mysqlstore.Repository
	redisClient *redisstore.RedisClient

	// Tracking
	trackingStore interfaces.TrackingStore
	artifacts     interfaces.ArtifactStore

	// Service layer
	pipeline     *pipeline.Pipeline
	runService   *service.RunService
	modelService *service.ModelService

	// Queue
	queue *asynqqueue.Manager

	// Handler layer
	runHandler   *handler.RunHandler
	modelHandler *handler.ModelHandler

	// HTTP server
	httpServer *http.Server
	ginEngine  *gin.Engine

	// Background tasks
	jobsManager *jobs.Manager

	// Context management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Background task cleanup functions
	cleanupFuncs []func()
}

type initStep struct {
	name string
	fn   func() error
}

// NewApplication creates a new Application instance
func NewApplication(parent context.Context, configPath string) *Application {
	ctx, cancel := context.WithCancel(parent)
	return &Application{
		configPath:   configPath,
		log:          logger.NewNop(),
		ctx:          ctx,
		cancel:       cancel,
		cleanupFuncs: make([]func(), 0),
	}
}

// coreSteps initializes everything a pipeline run needs
func (app *Application) coreSteps() []initStep {
	return []initStep{
		{"Configuration", app.initConfig},
		{"Logging", app.initLogger},
		{"MySQL", app.initMySQL},
		{"Redis", app.initRedis},
		{"Tracking", app.initTracking},
		{"Service Layer", app.initServices},
	}
}

// serverSteps adds the queue worker, background jobs and the HTTP API
func (app *Application) serverSteps() []initStep {
	return append(app.coreSteps(),
		initStep{"Queue", app.initQueue},
		initStep{"Background Tasks", app.initJobs},
		initStep{"Handler Layer", app.initHandlers},
		initStep{"HTTP Server", app.initHTTPServer},
	)
}

// Initialize runs the given initialization steps in order
func (app *Application) Initialize(steps []initStep) error {
	for _, step := range steps {
		app.log.DebugCtx(app.ctx, "Initializing %s...", step.name)
		if err := step.fn(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		app.log.DebugCtx(app.ctx, "%s initialized successfully", step.name)
	}
	return nil
}

// Start starts the queue worker, background jobs and HTTP server
func (app *Application) Start() error {
	app.log.InfoCtx(app.ctx, "Starting application components...")

	// 1. Start background tasks
	if app.jobsManager != nil {
		app.log.InfoCtx(app.ctx, "Starting background task manager")
		app.jobsManager.Start()
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.jobsManager.Wait()
		}()
	}

	// 2. Start queue worker
	if app.queue != nil {
		if err := app.queue.Start(); err != nil {
			return fmt.Errorf("failed to start queue server: %w", err)
		}
	}

	// 3. Start HTTP server
	if app.httpServer != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.log.InfoCtx(app.ctx, "HTTP server listening on: %s", app.httpServer.Addr)
			if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				app.log.ErrorCtx(app.ctx, "HTTP server error: %v", err)
				app.cancel()
			}
		}()
	}

	app.log.InfoCtx(app.ctx, "All components started successfully")
	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown(timeout time.Duration) error {
	app.log.InfoCtx(app.ctx, "Starting graceful shutdown (timeout: %v)...", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 1. Cancel all background tasks
	app.cancel()
	if app.jobsManager != nil {
		app.jobsManager.Stop()
	}

	// 2. Stop HTTP server (stop accepting new requests)
	if app.httpServer != nil {
		if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
			app.log.ErrorCtx(app.ctx, "HTTP server shutdown error: %v", err)
		}
	}

	// 3. Stop queue worker, waiting for active runs
	if app.queue != nil {
		app.queue.Stop()
	}

	// 4. Wait for all background tasks to complete
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		app.log.InfoCtx(app.ctx, "All background tasks completed")
	case <-shutdownCtx.Done():
		app.log.WarnCtx(app.ctx, "Shutdown timeout, some tasks may not have completed")
	}

	app.Close()
	app.log.InfoCtx(app.ctx, "Graceful shutdown completed")
	return nil
}

// Close executes cleanup functions in reverse registration order
func (app *Application) Close() {
	for i := len(app.cleanupFuncs) - 1; i >= 0; i-- {
		app.cleanupFuncs[i]()
	}
	app.cleanupFuncs = nil
	_ = app.log.Sync()
}

// registerCleanup registers cleanup function
func (app *Application) registerCleanup(cleanup func()) {
	app.cleanupFuncs = append(app.cleanupFuncs, cleanup)
}
