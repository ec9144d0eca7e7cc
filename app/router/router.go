package router

import (
	"net/http"

	"pdmflow/app/handler"
	"pdmflow/app/middleware"
	"pdmflow/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Router Router
type Router struct {
	runHandler   *handler.RunHandler
	modelHandler *handler.ModelHandler
	apiKey       string
	log          *logger.Logger
}

// NewRouter creates a new Router
func NewRouter(runHandler *handler.RunHandler, modelHandler *handler.ModelHandler, apiKey string, log *logger.Logger) *Router {
	return &Router{
		runHandler:   runHandler,
		modelHandler: modelHandler,
		apiKey:       apiKey,
		log:          log,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery(r.log))
	engine.Use(middleware.Logger(r.log))

	v1 := engine.Group("/v1")
	v1.Use(middleware.AuthMiddleware(r.apiKey, r.log))
	{
		runs := v1.Group("/runs")
		{
			runs.POST("", r.runHandler.Submit)
			runs.GET("", r.runHandler.List)
			runs.GET("/:id", r.runHandler.Get)
			runs.GET("/:id/progress", r.runHandler.Progress)
			runs.POST("/:id/cancel", r.runHandler.Cancel)
		}
		v1.GET("/queue", r.runHandler.QueueStats)

		// Model serving
		if r.modelHandler != nil {
			models := v1.Group("/models/:name")
			{
				models.GET("/versions", r.modelHandler.ListVersions)
				models.POST("/predict", r.modelHandler.Predict)
			}
		}
	}

	// Health check
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
