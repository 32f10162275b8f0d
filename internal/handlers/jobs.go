package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/herald/internal/jobs"
)

// JobRunner exposes the cron manager to the API.
type JobRunner interface {
	StatusAll() []jobs.JobStatus
	RunNow(ctx context.Context, name string) error
}

// JobsHandler serves the cron job endpoints.
type JobsHandler struct {
	jobs JobRunner
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(jobs JobRunner) *JobsHandler {
	return &JobsHandler{jobs: jobs}
}

// List returns the status of every job.
func (h *JobsHandler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, h.jobs.StatusAll())
}

// Run executes a job now and waits for it to finish.
func (h *JobsHandler) Run(c echo.Context) error {
	name := c.Param("name")
	err := h.jobs.RunNow(c.Request().Context(), name)
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		return errorJSON(c, http.StatusNotFound, "job_not_found", err.Error())
	case errors.Is(err, jobs.ErrJobRunning):
		return errorJSON(c, http.StatusConflict, "job_running", err.Error())
	case err != nil:
		return c.JSON(http.StatusInternalServerError, JobRunResponse{Job: name, Status: "failed", Error: err.Error()})
	}
	return c.JSON(http.StatusOK, JobRunResponse{Job: name, Status: "completed"})
}
