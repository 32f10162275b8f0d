package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/nfrund/herald/internal/cleanup"
	"github.com/nfrund/herald/internal/jobs"
	"github.com/nfrund/herald/internal/topicmgr"
	"github.com/stretchr/testify/assert"
)

func TestTopicsTable(t *testing.T) {
	used := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	TopicsTable(&buf, topicmgr.ActiveTopics{
		Core:    []topicmgr.Topic{{Name: "order", IsCore: true}},
		Dynamic: []topicmgr.Topic{{Name: "promo_alerts", LastUsedAt: used}},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[2], "order")
	assert.Contains(t, lines[2], "core")
	assert.Contains(t, lines[3], "promo_alerts")
	assert.Contains(t, lines[3], "2026-03-01T12:00:00Z")
}

func TestTopicsTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	TopicsTable(&buf, topicmgr.ActiveTopics{})
	assert.Contains(t, buf.String(), "No topics found")
}

func TestCleanupReport(t *testing.T) {
	var buf bytes.Buffer
	CleanupReport(&buf, cleanup.Report{Scanned: 3, Evicted: []string{"a", "b"}, Skipped: []string{"c"}})
	out := buf.String()
	assert.Contains(t, out, "Scanned 3 topics")
	assert.Contains(t, out, "a, b")
	assert.Contains(t, out, "skipped:")
	assert.NotContains(t, out, "nothing evicted")
}

func TestJobsTable(t *testing.T) {
	var buf bytes.Buffer
	JobsTable(&buf, []jobs.JobStatus{{
		Name:      "cleanup-unused-topics",
		Schedule:  jobs.Daily3AM,
		Enabled:   true,
		LastError: strings.Repeat("x", 60),
	}})
	out := buf.String()
	assert.Contains(t, out, "cleanup-unused-topics")
	assert.Contains(t, out, "0 3 * * *")
	assert.Contains(t, out, "...")
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, JSON(&buf, map[string]int{"n": 1}))
	assert.JSONEq(t, `{"n":1}`, buf.String())
}
