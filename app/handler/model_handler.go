package handler

import (
	"errors"
	"net/http"

	"pdmflow/internal/model"
	"pdmflow/internal/service"
	"pdmflow/pkg/logger"
	"pdmflow/pkg/tracking"

	"github.com/gin-gonic/gin"
)

// ModelHandler serves registered models
type ModelHandler struct {
	modelService *service.ModelService
	log          *logger.Logger
}

// NewModelHandler creates model handler
func NewModelHandler(modelService *service.ModelService, log *logger.Logger) *ModelHandler {
	return &ModelHandler{
		modelService: modelService,
		log:          log,
	}
}

// ListVersions lists registered versions
// @Summary List model versions
// @Tags models
// @Produce json
// @Param name path string true "Model name"
// @Success 200 {object} map[string]interface{} "Return format: {name: "", versions: []}"
// @Router /v1/models/{name}/versions [get]
func (h *ModelHandler) ListVersions(c *gin.Context) {
	name := c.Param("name")
	versions, err := h.modelService.ListVersions(c.Request.Context(), name)
	if err != nil {
		h.log.ErrorCtx(c.Request.Context(), "failed to list versions of %s: %v", name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if versions == nil {
		versions = []*model.ModelVersion{}
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "versions": versions})
}

// Predict scores feature records
// @Summary Predict with a registered model
// @Description Predict failure labels for feature records; version 0 or omitted is the latest
// @Tags models
// @Accept json
// @Produce json
// @Param name path string true "Model name"
// @Param request body model.PredictRequest true "Prediction request"
// @Success 200 {object} model.PredictResponse
// @Router /v1/models/{name}/predict [post]
func (h *ModelHandler) Predict(c *gin.Context) {
	name := c.Param("name")

	var req model.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.ErrorCtx(c.Request.Context(), "invalid request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	resp, err := h.modelService.Predict(c.Request.Context(), name, &req)
	if err != nil {
		switch {
		case errors.Is(err, tracking.ErrModelNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrInvalidRecords):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.log.ErrorCtx(c.Request.Context(), "failed to predict with %s: %v", name, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}
