package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/herald/internal/cleanup"
	"github.com/nfrund/herald/internal/handlers"
	"github.com/nfrund/herald/internal/jobs"
	"github.com/nfrund/herald/internal/messaging"
	"github.com/nfrund/herald/internal/metrics"
	"github.com/nfrund/herald/internal/testutils"
	"github.com/nfrund/herald/internal/topicmgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPErrorHandler_WithStackTrace(t *testing.T) {
	// --- Setup ---
	e := echo.New()

	// Capture log output through the default logger.
	var logBuffer bytes.Buffer
	handler := slog.NewTextHandler(&logBuffer, &slog.HandlerOptions{
		AddSource: true,
	})
	logger := slog.New(handler)
	originalLogger := slog.Default()
	slog.SetDefault(logger)
	defer slog.SetDefault(originalLogger)

	setupErrorHandling(e)

	e.GET("/test-unhandled-error", func(c echo.Context) error {
		return errors.New("a deliberate unhandled error occurred")
	})

	// --- Act ---
	req := httptest.NewRequest(http.MethodGet, "/test-unhandled-error", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	// --- Assert ---
	require.Equal(t, http.StatusInternalServerError, rec.Code, "Expected a 500 Internal Server Error response")

	var body handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal_error", body.Code)
	assert.NotContains(t, rec.Body.String(), "deliberate", "internal errors must not leak to clients")

	logOutput := logBuffer.String()
	assert.Contains(t, logOutput, "Internal Server Error (Unhandled)", "Log message should indicate an unhandled error")
	assert.Contains(t, logOutput, "error=\"a deliberate unhandled error occurred\"", "Log should contain the original error message")
	assert.Contains(t, logOutput, "stack_trace=", "Log must contain the stack_trace field")
	assert.Contains(t, logOutput, "runtime/debug/stack.go", "Stack trace should originate from the debug package")
	assert.Contains(t, logOutput, "internal/server/server_test.go", "Stack trace should point back to this test file")
}

func TestHTTPErrorHandler_HTTPError(t *testing.T) {
	e := echo.New()
	setupErrorHandling(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body.Code)
}

type noopCleanup struct{}

func (noopCleanup) Run(context.Context) (cleanup.Report, error) { return cleanup.Report{}, nil }

func newTestServer(t *testing.T) (*Server, *testutils.FakeBroker) {
	t.Helper()

	registry := topicmgr.NewRegistry()
	broker := testutils.NewFakeBroker()
	m := metrics.New()

	srv := New(Dependencies{
		APIPrefix:   "/api/v1",
		Logger:      slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		Metrics:     m,
		PublishRate: 100,
		Topics: handlers.NewTopicsHandler(
			messaging.NewPublisher(registry, broker, messaging.WithPublisherMetrics(m)),
			noopCleanup{},
		),
		Jobs:   handlers.NewJobsHandler(jobs.NewManager()),
		Health: handlers.NewHealthHandler("test", nil),
	})
	return srv, broker
}

func TestRoutes(t *testing.T) {
	srv, broker := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"health", http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{"list topics", http.MethodGet, "/api/v1/topics", "", http.StatusOK},
		{"core topic status", http.MethodGet, "/api/v1/topics/system", "", http.StatusOK},
		{"publish", http.MethodPost, "/api/v1/topics/promo_alerts/messages", `{"message":{"n":1}}`, http.StatusAccepted},
		{"cleanup", http.MethodPost, "/api/v1/cleanup", "", http.StatusOK},
		{"list jobs", http.MethodGet, "/api/v1/jobs", "", http.StatusOK},
		{"unknown job", http.MethodPost, "/api/v1/jobs/nope/run", "", http.StatusNotFound},
		{"outside prefix", http.MethodGet, "/topics", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			}
			rec := httptest.NewRecorder()
			srv.E.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
		})
	}

	assert.Len(t, broker.Published, 1)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/topics/order/messages", strings.NewReader(`{"message":"x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	srv.E.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	srv.E.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "herald_pubsub_messages_published_total")
}

func TestStartShutdown(t *testing.T) {
	srv, _ := newTestServer(t)

	errCh := srv.Start("127.0.0.1:0")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	for err := range errCh {
		t.Fatalf("unexpected server error: %v", err)
	}
}
