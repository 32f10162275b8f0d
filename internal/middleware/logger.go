package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
)

type contextKey string

const loggerKey = contextKey("logger")

// Logger injects a request-scoped logger into the request context and logs
// each completed request. It must run after the RequestID middleware.
func Logger(base *slog.Logger) echo.MiddlewareFunc {
	if base == nil {
		base = slog.Default()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			reqID := c.Response().Header().Get(echo.HeaderXRequestID)
			requestLogger := base.With("request_id", reqID, "method", req.Method, "path", req.URL.Path)

			c.SetRequest(req.WithContext(context.WithValue(req.Context(), loggerKey, requestLogger)))

			err := next(c)
			if err != nil {
				// Let the error handler write the response so the status is final.
				c.Error(err)
			}

			status := c.Response().Status
			attrs := []any{"status", status, "latency", time.Since(start)}
			switch {
			case status >= 500:
				requestLogger.Error("Request completed", attrs...)
			case status >= 400:
				requestLogger.Warn("Request completed", attrs...)
			default:
				requestLogger.Debug("Request completed", attrs...)
			}
			return nil
		}
	}
}

// FromContext returns the request-scoped logger, or the default logger when
// none was injected.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
