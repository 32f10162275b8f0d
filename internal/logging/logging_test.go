package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for input, want := range tests {
		assert.Equal(t, want, ParseLevel(input), input)
	}
}

func TestNewWithWriter(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	t.Run("json honours level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithWriter(&buf, "json", "warn")

		logger.Info("dropped")
		logger.Warn("kept", "topic", "order")

		out := buf.String()
		assert.NotContains(t, out, "dropped")
		assert.Contains(t, out, `"msg":"kept"`)
		assert.Contains(t, out, `"topic":"order"`)
	})

	t.Run("text is the default", func(t *testing.T) {
		var buf bytes.Buffer
		NewWithWriter(&buf, "", "")

		slog.Info("hello")
		assert.Contains(t, buf.String(), "msg=hello")
		assert.Contains(t, buf.String(), "source=")
	})
}

func TestCronLogger(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cl := CronLogger(l)

	cl.Info("wake", "now", "x")
	assert.Empty(t, buf.String(), "cron info goes out at debug level")

	cl.Error(errors.New("boom"), "panic", "job", "cleanup")
	assert.Contains(t, buf.String(), "msg=panic")
	assert.Contains(t, buf.String(), "job=cleanup")
	assert.Contains(t, buf.String(), "error=boom")
}
