package handler

import (
	"errors"
	"net/http"
	"strconv"

	"pdmflow/internal/model"
	"pdmflow/internal/service"
	"pdmflow/pkg/interfaces"
	"pdmflow/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RunHandler handles pipeline run operations
type RunHandler struct {
	runService *service.RunService
	queue      interfaces.RunQueue
	log        *logger.Logger
}

// NewRunHandler creates run handler. queue may be nil.
func NewRunHandler(runService *service.RunService, queue interfaces.RunQueue, log *logger.Logger) *RunHandler {
	return &RunHandler{
		runService: runService,
		queue:      queue,
		log:        log,
	}
}

// Submit submits a pipeline run
// @Summary Submit pipeline run
// @Description Create a PENDING run and queue it for a worker
// @Tags runs
// @Accept json
// @Produce json
// @Param request body model.SubmitRunRequest false "Run request"
// @Success 202 {object} model.SubmitRunResponse
// @Router /v1/runs [post]
func (h *RunHandler) Submit(c *gin.Context) {
	var req model.SubmitRunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.log.ErrorCtx(c.Request.Context(), "invalid request: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}

	resp, err := h.runService.Submit(c.Request.Context(), &req)
	if err != nil {
		h.log.ErrorCtx(c.Request.Context(), "failed to submit run: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

// List lists runs
// @Summary List runs
// @Description List runs newest first, optionally filtered by experiment
// @Tags runs
// @Produce json
// @Param experiment query string false "Experiment name"
// @Param limit query int false "Return count limit (default 20)"
// @Param offset query int false "Offset (default 0)"
// @Success 200 {object} map[string]interface{} "Return format: {runs: [], limit: 20, offset: 0}"
// @Router /v1/runs [get]
func (h *RunHandler) List(c *gin.Context) {
	experiment := c.Query("experiment")

	limit := 20
	if limitParam := c.Query("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	offset := 0
	if offsetParam := c.Query("offset"); offsetParam != "" {
		if parsed, err := strconv.Atoi(offsetParam); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	runs, err := h.runService.List(c.Request.Context(), experiment, limit, offset)
	if err != nil {
		h.log.ErrorCtx(c.Request.Context(), "failed to list runs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":   runs,
		"limit":  limit,
		"offset": offset,
	})
}

// Get gets a run
// @Summary Get run
// @Description Get a run with its params, metrics and artifacts
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} model.Run
// @Router /v1/runs/{id} [get]
func (h *RunHandler) Get(c *gin.Context) {
	runID := c.Param("id")
	run, err := h.runService.Get(c.Request.Context(), runID)
	if err != nil {
		h.writeError(c, "failed to get run", runID, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// Progress gets run progress
// @Summary Get run progress
// @Description Get the current stage and progress of a run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} model.RunProgress
// @Router /v1/runs/{id}/progress [get]
func (h *RunHandler) Progress(c *gin.Context) {
	runID := c.Param("id")
	p, err := h.runService.Progress(c.Request.Context(), runID)
	if err != nil {
		h.writeError(c, "failed to get run progress", runID, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Cancel cancels a pending run
// @Summary Cancel run
// @Description Cancel a run that has not started yet
// @Tags runs
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]string
// @Router /v1/runs/{id}/cancel [post]
func (h *RunHandler) Cancel(c *gin.Context) {
	runID := c.Param("id")
	if err := h.runService.Cancel(c.Request.Context(), runID); err != nil {
		h.writeError(c, "failed to cancel run", runID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "run cancelled"})
}

// QueueStats gets run queue statistics
// @Summary Get queue statistics
// @Tags runs
// @Produce json
// @Success 200 {object} interfaces.QueueStats
// @Router /v1/queue [get]
func (h *RunHandler) QueueStats(c *gin.Context) {
	if h.queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run queue is not configured"})
		return
	}
	stats, err := h.queue.GetQueueStats(c.Request.Context())
	if err != nil {
		h.log.ErrorCtx(c.Request.Context(), "failed to get queue stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *RunHandler) writeError(c *gin.Context, msg, runID string, err error) {
	switch {
	case errors.Is(err, service.ErrRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
	case errors.Is(err, service.ErrRunNotCancellable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.log.ErrorCtx(c.Request.Context(), "%s, run_id: %s, error: %v", msg, runID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
