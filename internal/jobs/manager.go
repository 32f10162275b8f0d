// Package jobs runs named maintenance tasks on cron schedules.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nfrund/herald/internal/logging"
	"github.com/nfrund/herald/internal/metrics"
	"github.com/robfig/cron/v3"
)

// Standard five-field schedules.
const (
	EveryMinute     = "* * * * *"
	Every5Minutes   = "*/5 * * * *"
	Every15Minutes  = "*/15 * * * *"
	Every30Minutes  = "*/30 * * * *"
	Hourly          = "0 * * * *"
	DailyMidnight   = "0 0 * * *"
	Daily3AM        = "0 3 * * *"
	WeeklySunday3AM = "0 3 * * 0"
	Monthly1st3AM   = "0 3 1 * *"
)

var (
	ErrJobExists   = errors.New("job already exists")
	ErrJobNotFound = errors.New("job not found")
	ErrJobRunning  = errors.New("job is already running")
)

// Task is the work of a job. A returned error is logged and passed to the
// job's error callback.
type Task func(ctx context.Context) error

// ErrorFunc is called when a task fails or panics.
type ErrorFunc func(ctx context.Context, name string, err error)

type jobOptions struct {
	location *time.Location
	onError  ErrorFunc
}

// JobOption configures a single job.
type JobOption func(*jobOptions)

// WithTimezone evaluates the schedule in loc. Jobs default to UTC.
func WithTimezone(loc *time.Location) JobOption {
	return func(o *jobOptions) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithOnError sets the failure callback.
func WithOnError(fn ErrorFunc) JobOption {
	return func(o *jobOptions) {
		o.onError = fn
	}
}

// JobStatus is a snapshot of one job.
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Timezone  string    `json:"timezone"`
	Enabled   bool      `json:"enabled"`
	Running   bool      `json:"running"`
	Runs      int       `json:"runs"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	NextRun   time.Time `json:"next_run,omitempty"`
}

type job struct {
	name     string
	spec     string
	schedule cron.Schedule
	task     Task
	opts     jobOptions

	// Guarded by Manager.mu.
	entryID cron.EntryID
	enabled bool
	running bool
	runs    int
	lastRun time.Time
	lastErr error
}

// Manager owns a cron scheduler and the jobs registered on it.
type Manager struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	cron    *cron.Cron

	mu      sync.Mutex
	jobs    map[string]*job
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics counts job runs on mt.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates a stopped manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		logger: slog.Default().With("component", "cron"),
		jobs:   make(map[string]*job),
	}
	for _, opt := range opts {
		opt(m)
	}

	cl := logging.CronLogger(m.logger)
	m.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// AddJob registers task under name. The job is scheduled immediately and
// first fires once the manager is started.
func (m *Manager) AddJob(name, spec string, task Task, opts ...JobOption) error {
	if task == nil {
		return fmt.Errorf("job %s: nil task", name)
	}

	o := jobOptions{location: time.UTC}
	for _, opt := range opts {
		opt(&o)
	}

	// A spec carrying its own CRON_TZ= or TZ= token overrides WithTimezone.
	full := fmt.Sprintf("CRON_TZ=%s %s", o.location.String(), spec)
	if tz, ok := specTimezone(spec); ok {
		full = strings.TrimSpace(spec)
		if loc, err := time.LoadLocation(tz); err == nil {
			o.location = loc
		}
	}
	schedule, err := cron.ParseStandard(full)
	if err != nil {
		return fmt.Errorf("job %s: invalid schedule %q: %w", name, spec, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobExists, name)
	}

	j := &job{
		name:     name,
		spec:     spec,
		schedule: schedule,
		task:     task,
		opts:     o,
	}
	m.jobs[name] = j
	m.enableLocked(j)

	m.logger.Info("Registered cron job", "job", name, "schedule", spec, "timezone", o.location.String())
	return nil
}

// specTimezone returns the zone named by a leading CRON_TZ= or TZ= token.
func specTimezone(spec string) (string, bool) {
	spec = strings.TrimSpace(spec)
	for _, prefix := range []string{"CRON_TZ=", "TZ="} {
		if rest, ok := strings.CutPrefix(spec, prefix); ok {
			tz, _, _ := strings.Cut(rest, " ")
			return tz, true
		}
	}
	return "", false
}

func (m *Manager) enableLocked(j *job) {
	if j.enabled {
		return
	}
	j.entryID = m.cron.Schedule(j.schedule, cron.FuncJob(func() {
		_ = m.execute(m.baseContext(), j)
	}))
	j.enabled = true
}

func (m *Manager) baseContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

// StartJob resumes a job paused with StopJob.
func (m *Manager) StartJob(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	m.enableLocked(j)
	m.logger.Info("Started cron job", "job", name)
	return nil
}

// StopJob pauses a job. A run already in progress finishes.
func (m *Manager) StopJob(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if j.enabled {
		m.cron.Remove(j.entryID)
		j.enabled = false
		j.entryID = 0
	}
	m.logger.Info("Stopped cron job", "job", name)
	return nil
}

// Start runs the scheduler. Calling Start on a started manager is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	if m.ctx.Err() != nil {
		m.ctx, m.cancel = context.WithCancel(context.Background())
	}
	m.cron.Start()
	m.started = true
	m.logger.Info("Started all cron jobs", "jobs", len(m.jobs))
}

// Stop halts the scheduler and waits for running jobs. When ctx ends first
// the running jobs' context is cancelled and ctx's error returned.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	cancel := m.cancel
	m.mu.Unlock()

	done := m.cron.Stop()
	select {
	case <-done.Done():
		m.logger.Info("Stopped all cron jobs")
		return nil
	case <-ctx.Done():
		cancel()
		return fmt.Errorf("wait for cron jobs: %w", ctx.Err())
	}
}

// RunNow executes a job synchronously outside its schedule.
func (m *Manager) RunNow(ctx context.Context, name string) error {
	m.mu.Lock()
	j, ok := m.jobs[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return m.execute(ctx, j)
}

// execute runs one invocation. Overlapping invocations of the same job are
// skipped.
func (m *Manager) execute(ctx context.Context, j *job) (err error) {
	m.mu.Lock()
	if j.running {
		m.mu.Unlock()
		m.logger.Warn("Skipping cron job, previous run still active", "job", j.name)
		return fmt.Errorf("%w: %s", ErrJobRunning, j.name)
	}
	j.running = true
	m.mu.Unlock()

	started := time.Now()
	m.logger.Info("Starting cron job", "job", j.name)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.name, r)
		}

		m.mu.Lock()
		j.running = false
		j.runs++
		j.lastRun = started.UTC()
		j.lastErr = err
		m.mu.Unlock()

		m.metrics.JobRun(j.name, err == nil)
		if err != nil {
			m.logger.Error("Error in cron job", "job", j.name, "error", err)
			if j.opts.onError != nil {
				j.opts.onError(ctx, j.name, err)
			}
			return
		}
		m.logger.Info("Completed cron job", "job", j.name, "duration", time.Since(started))
	}()

	return j.task(ctx)
}

// Status returns the status of one job.
func (m *Manager) Status(name string) (JobStatus, bool) {
	m.mu.Lock()
	j, ok := m.jobs[name]
	if !ok {
		m.mu.Unlock()
		return JobStatus{}, false
	}
	status := m.statusLocked(j)
	entryID := j.entryID
	m.mu.Unlock()

	if entryID != 0 {
		status.NextRun = m.cron.Entry(entryID).Next
	}
	return status, ok
}

// StatusAll returns every job's status ordered by name.
func (m *Manager) StatusAll() []JobStatus {
	m.mu.Lock()
	statuses := make([]JobStatus, 0, len(m.jobs))
	ids := make([]cron.EntryID, 0, len(m.jobs))
	for _, j := range m.jobs {
		statuses = append(statuses, m.statusLocked(j))
		ids = append(ids, j.entryID)
	}
	m.mu.Unlock()

	for i, id := range ids {
		if id != 0 {
			statuses[i].NextRun = m.cron.Entry(id).Next
		}
	}
	sort.Slice(statuses, func(a, b int) bool { return statuses[a].Name < statuses[b].Name })
	return statuses
}

func (m *Manager) statusLocked(j *job) JobStatus {
	status := JobStatus{
		Name:     j.name,
		Schedule: j.spec,
		Timezone: j.opts.location.String(),
		Enabled:  j.enabled && m.started,
		Running:  j.running,
		Runs:     j.runs,
		LastRun:  j.lastRun,
	}
	if j.lastErr != nil {
		status.LastError = j.lastErr.Error()
	}
	return status
}
