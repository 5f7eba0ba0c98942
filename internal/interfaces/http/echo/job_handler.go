package echo

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	app "github.com/mohammadpnp/bulk-import/internal/application/importing"
	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

type JobHandler struct {
	get    app.GetImportJob
	list   app.ListImportJobs
	cancel app.CancelImportJob
}

func NewJobHandler(get app.GetImportJob, list app.ListImportJobs, cancel app.CancelImportJob) *JobHandler {
	return &JobHandler{get: get, list: list, cancel: cancel}
}

func (h *JobHandler) Get(c echo.Context) error {
	out, err := h.get.Execute(c.Request().Context(), app.GetImportJobInput{ID: c.Param("id")})
	if err != nil {
		return respondUseCaseError(c, err, "failed to get import job")
	}
	return c.JSON(http.StatusOK, apiResponse{Data: out})
}

func (h *JobHandler) List(c echo.Context) error {
	in := app.ListImportJobsInput{Status: domain.JobStatus(c.QueryParam("status"))}
	if raw := c.QueryParam("table_type"); raw != "" {
		tt, err := domain.ParseTableType(raw)
		if err != nil {
			return respondUseCaseError(c, err, "failed to list import jobs")
		}
		in.TableType = tt
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return respondError(c, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
		}
		in.Limit = limit
	}

	out, err := h.list.Execute(c.Request().Context(), in)
	if err != nil {
		return respondUseCaseError(c, err, "failed to list import jobs")
	}
	return c.JSON(http.StatusOK, apiResponse{Data: out})
}

// Cancel only succeeds for queued jobs; anything already running or
// finished gets 409.
func (h *JobHandler) Cancel(c echo.Context) error {
	out, err := h.cancel.Execute(c.Request().Context(), app.CancelImportJobInput{ID: c.Param("id")})
	if err != nil {
		return respondUseCaseError(c, err, "failed to cancel import job")
	}
	if !out.Cancelled {
		return respondError(c, http.StatusConflict, "not_cancellable", "only queued jobs can be cancelled")
	}
	return c.JSON(http.StatusOK, apiResponse{Data: out})
}
