// Package output renders API results for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nfrund/herald/internal/cleanup"
	"github.com/nfrund/herald/internal/jobs"
	"github.com/nfrund/herald/internal/topicmgr"
)

// JSON writes v indented.
func JSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// TopicsTable writes core topics first, then dynamic topics.
func TopicsTable(w io.Writer, active topicmgr.ActiveTopics) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "NAME\tKIND\tLAST USED")
	fmt.Fprintln(tw, "----\t----\t---------")
	for _, t := range active.Core {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, "core", "-")
	}
	for _, t := range active.Dynamic {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, "dynamic", formatTime(t.LastUsedAt))
	}
	if len(active.Core)+len(active.Dynamic) == 0 {
		fmt.Fprintln(tw, "No topics found")
	}
}

// TopicStatus writes the details of one topic.
func TopicStatus(w io.Writer, s topicmgr.TopicStatus) {
	kind := "dynamic"
	if s.IsCore {
		kind = "core"
	}
	fmt.Fprintf(w, "Name:      %s\n", s.Name)
	fmt.Fprintf(w, "Kind:      %s\n", kind)
	fmt.Fprintf(w, "Last used: %s\n", formatTime(s.LastUsedAt))
}

// CleanupReport summarizes a cleanup pass.
func CleanupReport(w io.Writer, r cleanup.Report) {
	fmt.Fprintf(w, "Scanned %d topics in %s\n", r.Scanned, r.Duration)
	list := func(label string, names []string) {
		if len(names) == 0 {
			return
		}
		fmt.Fprintf(w, "  %-10s %s\n", label+":", strings.Join(names, ", "))
	}
	list("evicted", r.Evicted)
	list("skipped", r.Skipped)
	list("refreshed", r.Refreshed)
	list("failed", r.Failed)
	if len(r.Evicted) == 0 {
		fmt.Fprintln(w, "  nothing evicted")
	}
}

// JobsTable writes one row per job.
func JobsTable(w io.Writer, statuses []jobs.JobStatus) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "NAME\tSCHEDULE\tENABLED\tRUNS\tLAST RUN\tNEXT RUN\tLAST ERROR")
	for _, s := range statuses {
		lastErr := s.LastError
		if lastErr == "" {
			lastErr = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%s\t%s\t%s\n",
			s.Name, s.Schedule, s.Enabled, s.Runs,
			formatTime(s.LastRun), formatTime(s.NextRun), truncate(lastErr, 40))
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// truncate shortens s to maxLen characters, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
