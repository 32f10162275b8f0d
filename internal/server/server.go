package server

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/herald/internal/handlers"
	"github.com/nfrund/herald/internal/metrics"
	appmw "github.com/nfrund/herald/internal/middleware"
)

// Dependencies holds the handlers and settings the HTTP server is built from.
type Dependencies struct {
	APIPrefix   string
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	PublishRate float64

	Topics *handlers.TopicsHandler
	Jobs   *handlers.JobsHandler
	Health *handlers.HealthHandler
	Stream *handlers.StreamHandler
}

// Server is the admin HTTP API.
type Server struct {
	E      *echo.Echo
	deps   Dependencies
	logger *slog.Logger
}

// New creates a Server with middleware and routes registered.
func New(deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewValidator()

	e.Use(middleware.RequestID())
	e.Use(appmw.Logger(logger))
	e.Use(middleware.Recover())

	setupErrorHandling(e)

	s := &Server{E: e, deps: deps, logger: logger.With("component", "http")}
	s.RegisterRoutes()
	return s
}

// setupErrorHandling installs an error handler that returns JSON bodies and
// logs unhandled errors with a stack trace.
func setupErrorHandling(e *echo.Echo) {
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			message := http.StatusText(he.Code)
			if m, ok := he.Message.(string); ok {
				message = m
			}
			writeError(c, he.Code, handlers.ErrorResponse{Code: codeFor(he.Code), Message: message})
			return
		}

		appmw.FromContext(c.Request().Context()).Error("Internal Server Error (Unhandled)",
			"error", err,
			"stack_trace", string(debug.Stack()),
		)
		writeError(c, http.StatusInternalServerError, handlers.ErrorResponse{
			Code:    "internal_error",
			Message: http.StatusText(http.StatusInternalServerError),
		})
	}
}

func writeError(c echo.Context, status int, body handlers.ErrorResponse) {
	var err error
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		slog.Error("Failed to write error response", "error", err)
	}
}

func codeFor(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "error"
	}
}
