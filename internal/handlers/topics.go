package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/herald/internal/cleanup"
	"github.com/nfrund/herald/internal/messaging"
	"github.com/nfrund/herald/internal/middleware"
	"github.com/nfrund/herald/internal/topicmgr"
)

// TopicService is the publisher side of the topic subsystem.
type TopicService interface {
	Publish(ctx context.Context, topic string, message any) (messaging.PublishResult, error)
	ActiveTopics() topicmgr.ActiveTopics
	TopicStatus(topic string) topicmgr.TopicStatus
}

// CleanupRunner runs an on-demand cleanup pass.
type CleanupRunner interface {
	Run(ctx context.Context) (cleanup.Report, error)
}

// TopicsHandler serves the topic endpoints.
type TopicsHandler struct {
	topics  TopicService
	cleanup CleanupRunner
}

// NewTopicsHandler creates a new topics handler.
func NewTopicsHandler(topics TopicService, cleanup CleanupRunner) *TopicsHandler {
	return &TopicsHandler{topics: topics, cleanup: cleanup}
}

// List returns the core and dynamic topics.
func (h *TopicsHandler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, h.topics.ActiveTopics())
}

// Status returns one topic's status without marking it used.
func (h *TopicsHandler) Status(c echo.Context) error {
	name, err := topicmgr.Normalize(c.Param("name"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_topic", err.Error())
	}

	status := h.topics.TopicStatus(name)
	if !status.Exists {
		return errorJSON(c, http.StatusNotFound, "topic_not_found", "topic "+name+" is not registered")
	}
	return c.JSON(http.StatusOK, status)
}

// Publish sends the request's message to the topic.
func (h *TopicsHandler) Publish(c echo.Context) error {
	var req PublishRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid_body", "request body must be JSON with a message field")
	}
	if err := c.Validate(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "validation_failed", err.Error())
	}

	result, err := h.topics.Publish(c.Request().Context(), req.Topic, req.Message)
	if err != nil {
		var pubErr *messaging.PublishError
		if errors.As(err, &pubErr) && pubErr.Op != "publish" {
			return errorJSON(c, http.StatusBadRequest, "invalid_message", err.Error())
		}
		middleware.FromContext(c.Request().Context()).Error("Publish failed", "topic", req.Topic, "error", err)
		return errorJSON(c, http.StatusBadGateway, "publish_failed", err.Error())
	}
	return c.JSON(http.StatusAccepted, result)
}

// Cleanup runs a cleanup pass and returns its report.
func (h *TopicsHandler) Cleanup(c echo.Context) error {
	report, err := h.cleanup.Run(c.Request().Context())
	switch {
	case errors.Is(err, cleanup.ErrRunInProgress):
		return errorJSON(c, http.StatusConflict, "cleanup_running", err.Error())
	case errors.Is(err, cleanup.ErrStopped):
		return errorJSON(c, http.StatusServiceUnavailable, "cleanup_stopped", err.Error())
	case err != nil:
		return err
	}
	return c.JSON(http.StatusOK, report)
}
