// Package handler exposes the thin HTTP surface over the Job Runner:
// submit, get, list, and cancel. Row-level processing, credit accounting,
// and research are entirely internal to the service layer.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/brightleads/dmengine/internal/platform/auth"
	httpPlatform "github.com/brightleads/dmengine/internal/platform/http"
	"github.com/brightleads/dmengine/modules/jobs/model"
	"github.com/brightleads/dmengine/modules/jobs/ports"
	"github.com/brightleads/dmengine/modules/jobs/service"
	"github.com/gin-gonic/gin"
)

// jobSummaryCacheTTL bounds how stale a polled job summary can be; short
// enough that a client polling for completion never waits materially
// longer than without the cache.
const jobSummaryCacheTTL = 10 * time.Second

// JobHandler handles job HTTP requests.
type JobHandler struct {
	runner *service.JobRunner
	cache  ports.JobSummaryCache
}

// NewJobHandler creates a new job handler. cache may be nil, in which case
// Get always reads through to the Job Runner.
func NewJobHandler(runner *service.JobRunner, cache ports.JobSummaryCache) *JobHandler {
	return &JobHandler{runner: runner, cache: cache}
}

// Submit godoc
// @Summary Submit a job
// @Description Upload a table of companies for decision-maker research
// @Tags jobs
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body model.SubmitJobRequest true "Job submission"
// @Success 202 {object} model.JobDTO
// @Failure 400 {object} httpPlatform.ErrorResponse
// @Failure 401 {object} httpPlatform.ErrorResponse
// @Failure 500 {object} httpPlatform.ErrorResponse
// @Router /jobs [post]
func (h *JobHandler) Submit(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		httpPlatform.RespondWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	var req model.SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpPlatform.RespondWithError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request payload")
		return
	}

	job, err := h.runner.Submit(c.Request.Context(), userID, &req)
	if err != nil {
		statusCode := http.StatusInternalServerError
		if err == model.ErrNoRows {
			statusCode = http.StatusBadRequest
		}
		httpPlatform.RespondWithError(c, statusCode, string(model.GetErrorCode(err)), model.GetErrorMessage(err))
		return
	}

	// The Runner owns its own lifetime from here; the request that
	// submitted the job does not wait on it.
	go h.runner.Run(context.Background(), job.ID)

	httpPlatform.RespondWithData(c, http.StatusAccepted, job.ToDTO())
}

// Get godoc
// @Summary Get a job
// @Description Get the status and counters of a submitted job
// @Tags jobs
// @Security BearerAuth
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} model.JobDTO
// @Failure 401 {object} httpPlatform.ErrorResponse
// @Failure 404 {object} httpPlatform.ErrorResponse "Job not found"
// @Router /jobs/{id} [get]
func (h *JobHandler) Get(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		httpPlatform.RespondWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	jobID := c.Param("id")

	if h.cache != nil {
		if cached, ok := h.cache.GetJobSummary(c.Request.Context(), userID, jobID); ok {
			dto := &model.JobDTO{}
			if err := json.Unmarshal(cached, dto); err == nil {
				httpPlatform.RespondWithData(c, http.StatusOK, dto)
				return
			}
		}
	}

	job, err := h.runner.GetForUser(c.Request.Context(), userID, jobID)
	if err != nil {
		statusCode := http.StatusInternalServerError
		if err == model.ErrJobNotFound {
			statusCode = http.StatusNotFound
		}
		httpPlatform.RespondWithError(c, statusCode, string(model.GetErrorCode(err)), model.GetErrorMessage(err))
		return
	}

	dto := job.ToDTO()
	if h.cache != nil {
		if payload, err := json.Marshal(dto); err == nil {
			h.cache.SetJobSummary(c.Request.Context(), userID, jobID, payload, jobSummaryCacheTTL)
		}
	}

	httpPlatform.RespondWithData(c, http.StatusOK, dto)
}

// List godoc
// @Summary List jobs
// @Description List the authenticated user's jobs
// @Tags jobs
// @Security BearerAuth
// @Produce json
// @Param status query string false "Filter by status"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} httpPlatform.PaginatedResponse
// @Failure 401 {object} httpPlatform.ErrorResponse
// @Router /jobs [get]
func (h *JobHandler) List(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		httpPlatform.RespondWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	pagination, err := httpPlatform.ParsePaginationParams(c)
	if err != nil {
		httpPlatform.RespondWithError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid pagination parameters")
		return
	}

	jobs, total, err := h.runner.List(c.Request.Context(), userID, pagination.Limit, pagination.Offset, c.Query("status"))
	if err != nil {
		httpPlatform.RespondWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}

	httpPlatform.RespondWithPagination(c, http.StatusOK, jobs, pagination.Limit, pagination.Offset, total)
}

// Cancel godoc
// @Summary Cancel a job
// @Description Request cancellation of a non-terminal job; the Runner observes it at the next batch boundary
// @Tags jobs
// @Security BearerAuth
// @Produce json
// @Param id path string true "Job ID"
// @Success 204
// @Failure 401 {object} httpPlatform.ErrorResponse
// @Failure 409 {object} httpPlatform.ErrorResponse "Job already in a terminal status"
// @Router /jobs/{id}/cancel [post]
func (h *JobHandler) Cancel(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		httpPlatform.RespondWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	if err := h.runner.Cancel(c.Request.Context(), userID, c.Param("id")); err != nil {
		statusCode := http.StatusInternalServerError
		if err == model.ErrAlreadyTerminal {
			statusCode = http.StatusConflict
		}
		httpPlatform.RespondWithError(c, statusCode, string(model.GetErrorCode(err)), model.GetErrorMessage(err))
		return
	}

	c.Status(http.StatusNoContent)
}

// Export godoc
// @Summary Get a job's export download link
// @Description Returns a time-limited URL to download the job's result artifact once it has finished
// @Tags jobs
// @Security BearerAuth
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} map[string]string
// @Failure 401 {object} httpPlatform.ErrorResponse
// @Failure 404 {object} httpPlatform.ErrorResponse "Job not found"
// @Failure 409 {object} httpPlatform.ErrorResponse "Job has not finished processing"
// @Router /jobs/{id}/export [get]
func (h *JobHandler) Export(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		httpPlatform.RespondWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	url, err := h.runner.ExportDownloadURL(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		statusCode := http.StatusInternalServerError
		switch err {
		case model.ErrJobNotFound:
			statusCode = http.StatusNotFound
		case model.ErrJobNotFinished:
			statusCode = http.StatusConflict
		}
		httpPlatform.RespondWithError(c, statusCode, string(model.GetErrorCode(err)), model.GetErrorMessage(err))
		return
	}

	httpPlatform.RespondWithData(c, http.StatusOK, gin.H{"download_url": url})
}

// RegisterRoutes wires the job endpoints behind authMiddleware.
func RegisterRoutes(router *gin.RouterGroup, h *JobHandler, authMiddleware gin.HandlerFunc) {
	jobs := router.Group("/jobs", authMiddleware)
	jobs.POST("", h.Submit)
	jobs.GET("", h.List)
	jobs.GET("/:id", h.Get)
	jobs.POST("/:id/cancel", h.Cancel)
	jobs.GET("/:id/export", h.Export)
}
