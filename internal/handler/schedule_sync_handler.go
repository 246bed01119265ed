package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-schedule-api/internal/dto"
	"github.com/noah-isme/tutor-schedule-api/internal/middleware"
	"github.com/noah-isme/tutor-schedule-api/internal/service"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
	"github.com/noah-isme/tutor-schedule-api/pkg/response"
)

// TriggerAdmin marks runs requested over HTTP.
const TriggerAdmin = "admin"

type scheduleSyncRunner interface {
	Run(ctx context.Context, req dto.ScheduleSyncRequest) (*dto.ScheduleSyncResult, error)
}

type workloadReporter interface {
	Summary(ctx context.Context, query dto.WorkloadQuery) (*dto.WorkloadResponse, bool, error)
	Export(ctx context.Context, query dto.WorkloadQuery) (*service.ExportFile, error)
}

type lockHistory interface {
	History(ctx context.Context, query dto.JobLockQuery) ([]dto.JobLockView, error)
}

// ScheduleSyncHandler exposes the reconciler and its reports.
type ScheduleSyncHandler struct {
	sync     scheduleSyncRunner
	workload workloadReporter
	locks    lockHistory
}

// NewScheduleSyncHandler constructs the handler.
func NewScheduleSyncHandler(sync scheduleSyncRunner, workload workloadReporter, locks lockHistory) *ScheduleSyncHandler {
	return &ScheduleSyncHandler{sync: sync, workload: workload, locks: locks}
}

// Run godoc
// @Summary Reconcile class sessions with weekly templates
// @Description Creates, updates and removes future sessions of a month so they match the weekly templates. Manual and past sessions are never touched. At most one run per month is in flight.
// @Tags Scheduling
// @Accept json
// @Produce json
// @Param month query string false "Month (YYYY-MM), defaults to the current month"
// @Param mode query string false "future-only (default) or include-held"
// @Param classId query string false "Restrict the run to one class"
// @Param payload body dto.ScheduleSyncRequest false "Same fields as the query"
// @Success 200 {object} dto.ScheduleSyncResult
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} dto.ScheduleSyncFailure
// @Failure 500 {object} dto.ScheduleSyncFailure
// @Router /schedule-sync/run [post]
func (h *ScheduleSyncHandler) Run(c *gin.Context) {
	var req dto.ScheduleSyncRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	req.Trigger = TriggerAdmin
	req.ActorID = actorID(c)

	result, err := h.sync.Run(c.Request.Context(), req)
	if err != nil {
		appErr := appErrors.FromError(err)
		switch {
		case errors.Is(err, appErrors.ErrJobRunning):
			response.Raw(c, http.StatusConflict, dto.ScheduleSyncFailure{Success: false, Reason: appErrors.ErrJobRunning.Message})
		case appErr.Status >= http.StatusInternalServerError:
			response.Raw(c, appErr.Status, dto.ScheduleSyncFailure{Success: false, Error: appErr.Message})
		default:
			response.Error(c, appErr)
		}
		return
	}
	response.Raw(c, http.StatusOK, result)
}

// Workload godoc
// @Summary Per-teacher workload of a month
// @Tags Scheduling
// @Produce json
// @Param month query string false "Month (YYYY-MM), defaults to the current month"
// @Param classId query string false "Restrict to one class"
// @Success 200 {object} response.Envelope
// @Router /schedule-sync/workload [get]
func (h *ScheduleSyncHandler) Workload(c *gin.Context) {
	var query dto.WorkloadQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	start := time.Now()
	summary, cacheHit, err := h.workload.Summary(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ResponseMeta(c)
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, summary, meta)
}

// ExportWorkload godoc
// @Summary Download the workload of a month
// @Tags Scheduling
// @Produce text/csv
// @Produce application/pdf
// @Param month query string false "Month (YYYY-MM)"
// @Param classId query string false "Restrict to one class"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /schedule-sync/workload/export [get]
func (h *ScheduleSyncHandler) ExportWorkload(c *gin.Context) {
	var query dto.WorkloadQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	file, err := h.workload.Export(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// Locks godoc
// @Summary Run history of batch jobs
// @Description Lists lock rows newest first. A row without finished_at is a run in flight or one that died without releasing.
// @Tags Scheduling
// @Produce json
// @Param job query string false "Job name"
// @Param limit query int false "Maximum rows (1-200)"
// @Success 200 {object} response.Envelope
// @Router /schedule-sync/locks [get]
func (h *ScheduleSyncHandler) Locks(c *gin.Context) {
	var query dto.JobLockQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	views, err := h.locks.History(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views, map[string]interface{}{"count": len(views)})
}
