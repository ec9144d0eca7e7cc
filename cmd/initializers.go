package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"pdmflow/app/handler"
	"pdmflow/app/router"
	"pdmflow/internal/pipeline"
	"pdmflow/internal/service"
	"pdmflow/pkg/artifact"
	"pdmflow/pkg/config"
	"pdmflow/pkg/lock"
	"pdmflow/pkg/logger"
	"pdmflow/pkg/notification"
	asynqqueue "pdmflow/pkg/queue/asynq"
	mysqlstore "pdmflow/pkg/store/mysql"
	redisstore "pdmflow/pkg/store/redis"
	"pdmflow/pkg/tracking"

	"github.com/gin-gonic/gin"
)

// initConfig initializes configuration
func (app *Application) initConfig() error {
	cfg, err := config.Load(app.configPath)
	if err != nil {
		return err
	}
	app.config = cfg
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	log, err := logger.New(app.config.Logger)
	if err != nil {
		return err
	}
	app.log = log
	return nil
}

// initMySQL connects the tracking database when the mysql backend is selected
func (app *Application) initMySQL() error {
	if app.config.Tracking.Backend != "mysql" {
		app.log.InfoCtx(app.ctx, "Tracking backend is %s, skipping MySQL", app.config.Tracking.Backend)
		return nil
	}

	repo, err := mysqlstore.NewRepository(app.config.MySQL.DSN())
	if err != nil {
		return err
	}
	if err := repo.GetDatastore().Migrate(app.ctx); err != nil {
		repo.Close()
		return err
	}

	app.mysqlRepo = repo
	app.registerCleanup(func() {
		repo.Close()
		app.log.InfoCtx(app.ctx, "MySQL connection has been closed")
	})
	return nil
}

// initRedis connects redis when configured. Without redis, locks run in
// single-instance mode and progress is not recorded.
func (app *Application) initRedis() error {
	if app.config.Redis.Addr == "" {
		app.log.InfoCtx(app.ctx, "Redis not configured, locks run in single-instance mode")
		return nil
	}

	client, err := redisstore.NewRedisClient(app.ctx, app.config.Redis)
	if err != nil {
		return err
	}

	app.redisClient = client
	app.registerCleanup(func() {
		client.Close()
		app.log.InfoCtx(app.ctx, "Redis connection has been closed")
	})
	return nil
}

// initTracking creates the tracking and artifact stores
func (app *Application) initTracking() error {
	store, err := tracking.NewStore(app.config.Tracking.Backend, app.mysqlRepo)
	if err != nil {
		return err
	}
	artifacts, err := artifact.NewStore(app.ctx, app.config.Artifacts)
	if err != nil {
		return err
	}
	app.trackingStore = store
	app.artifacts = artifacts
	return nil
}

// initPipeline creates the dataset-to-model pipeline
func (app *Application) initPipeline() error {
	app.pipeline = pipeline.New(app.config, app.log)
	return nil
}

// initServices initializes service layer
func (app *Application) initServices() error {
	if err := app.initPipeline(); err != nil {
		return err
	}
	app.runService = service.NewRunService(app.config, app.trackingStore, app.artifacts, app.pipeline, app.log).
		WithNotifier(notification.NewNotifier(app.config.Notification.WebhookURL, app.log))
	app.modelService = service.NewModelService(app.trackingStore, app.artifacts, app.log)

	if client := app.rawRedis(); client != nil {
		app.runService.
			WithProgress(redisstore.NewProgressRepository(app.redisClient)).
			WithLocks(func(experiment string) lock.DistributedLock {
				return lock.ForExperiment(client, experiment, app.log)
			})
	}
	return nil
}

// initQueue creates the asynq queue and routes runs to the run service
func (app *Application) initQueue() error {
	if app.redisClient == nil {
		return errors.New("redis is required to serve the run queue")
	}

	queue, err := asynqqueue.NewManager(app.config, app.log)
	if err != nil {
		return err
	}
	queue.RegisterRunHandler(app.runService.Execute)
	app.runService.WithQueue(queue)

	app.queue = queue
	app.registerCleanup(func() {
		queue.Close()
		app.log.InfoCtx(app.ctx, "Queue client has been closed")
	})
	return nil
}

// initHandlers initializes handler layer
func (app *Application) initHandlers() error {
	app.runHandler = handler.NewRunHandler(app.runService, app.queue, app.log)
	app.modelHandler = handler.NewModelHandler(app.modelService, app.log)
	return nil
}

// initHTTPServer initializes HTTP server
func (app *Application) initHTTPServer() error {
	gin.SetMode(app.config.Server.Mode)
	app.ginEngine = gin.New()

	r := router.NewRouter(app.runHandler, app.modelHandler, app.config.Server.APIKey, app.log)
	r.Setup(app.ginEngine)

	app.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.ginEngine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

func (app *Application) rawRedis() *redis.Client {
	if app.redisClient == nil {
		return nil
	}
	return app.redisClient.GetClient()
}
