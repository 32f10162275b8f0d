// Package cleanup evicts dynamic topics that have been idle past a threshold
// and have no subscribers left on the broker.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nfrund/herald/internal/logging"
	"github.com/nfrund/herald/internal/metrics"
	"github.com/nfrund/herald/internal/topicmgr"
	"github.com/robfig/cron/v3"
)

var (
	// ErrRunInProgress is returned by Run while another run is scanning.
	ErrRunInProgress = errors.New("cleanup already running")
	// ErrStopped is returned by Run and Start after Stop.
	ErrStopped = errors.New("cleanup scheduler stopped")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("cleanup scheduler already started")
)

// SubscriberCounter reports how many subscribers a topic has on the broker.
type SubscriberCounter interface {
	SubscriberCount(ctx context.Context, topic string) (int64, error)
}

// SubscriberQueryError is a failed subscriber count during a run. The topic
// is kept and looked at again on the next run.
type SubscriberQueryError struct {
	Topic string
	Err   error
}

func (e *SubscriberQueryError) Error() string {
	return fmt.Sprintf("query subscribers of %s: %v", e.Topic, e.Err)
}

func (e *SubscriberQueryError) Unwrap() error { return e.Err }

// Config holds the scheduler settings.
type Config struct {
	// IdleThreshold is how long a topic must go unused before it is a
	// candidate for eviction.
	IdleThreshold time.Duration
	// Interval is the period of the recurring sweep started by Start.
	Interval time.Duration
	// QueryTimeout bounds each subscriber count query.
	QueryTimeout time.Duration
}

// DefaultConfig returns a day-long threshold and interval.
func DefaultConfig() Config {
	return Config{
		IdleThreshold: 24 * time.Hour,
		Interval:      24 * time.Hour,
		QueryTimeout:  5 * time.Second,
	}
}

// State is the scheduler's run state.
type State int32

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// Report describes one finished run.
type Report struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Scanned   int           `json:"scanned"`
	// Evicted topics were idle with no subscribers.
	Evicted []string `json:"evicted"`
	// Skipped topics were idle but still had subscribers.
	Skipped []string `json:"skipped"`
	// Refreshed topics were used between the snapshot and the eviction.
	Refreshed []string `json:"refreshed"`
	// Failed topics could not be queried.
	Failed []string `json:"failed"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records run results on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithSchedule replaces the fixed-interval schedule used by Start.
func WithSchedule(schedule cron.Schedule) Option {
	return func(s *Scheduler) {
		if schedule != nil {
			s.schedule = schedule
		}
	}
}

// Scheduler scans the registry for idle dynamic topics. Time is read
// through the registry's clock, so tests drive both with one clock.
type Scheduler struct {
	registry *topicmgr.Registry
	counter  SubscriberCounter
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	schedule cron.Schedule

	state atomic.Int32
	runs  sync.WaitGroup

	mu      sync.Mutex
	cron    *cron.Cron
	stopped bool
	last    *Report
}

// NewScheduler creates a stopped scheduler. Zero config fields take their
// defaults.
func NewScheduler(registry *topicmgr.Registry, counter SubscriberCounter, cfg Config, opts ...Option) *Scheduler {
	def := DefaultConfig()
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = def.IdleThreshold
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = def.QueryTimeout
	}

	s := &Scheduler{
		registry: registry,
		counter:  counter,
		cfg:      cfg,
		logger:   slog.Default().With("component", "topic-cleanup"),
		schedule: cron.Every(cfg.Interval),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// State reports whether a run is in progress.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// LastReport returns the most recent completed run, if any.
func (s *Scheduler) LastReport() (Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last == nil {
		return Report{}, false
	}
	return *s.last, true
}

// Start begins the recurring sweep.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.cron != nil {
		return ErrAlreadyStarted
	}

	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logging.CronLogger(s.logger)),
	)
	s.cron.Schedule(s.schedule, cron.FuncJob(s.sweep))
	s.cron.Start()

	s.logger.Info("Topic cleanup scheduled",
		"interval", s.cfg.Interval,
		"idle_threshold", s.cfg.IdleThreshold)
	return nil
}

// Stop prevents future runs and waits for an in-flight run to finish, or
// for ctx to be done. A running scan is never interrupted.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	c := s.cron
	s.mu.Unlock()

	if c != nil {
		c.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Topic cleanup stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for cleanup run: %w", ctx.Err())
	}
}

func (s *Scheduler) sweep() {
	if _, err := s.Run(context.Background()); err != nil && !errors.Is(err, ErrStopped) {
		s.logger.Warn("Scheduled topic cleanup did not run", "error", err)
	}
}

// Run performs one cleanup pass. Per-topic failures are recorded in the
// report and never abort the pass; the returned error is only set when the
// pass could not run at all.
func (s *Scheduler) Run(ctx context.Context) (report Report, err error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return Report{}, ErrStopped
	}
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		s.mu.Unlock()
		return Report{}, ErrRunInProgress
	}
	s.runs.Add(1)
	s.mu.Unlock()

	defer s.runs.Done()
	defer s.state.Store(int32(StateIdle))

	started := time.Now()
	report.StartedAt = s.registry.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Topic cleanup panicked", "panic", r)
			err = fmt.Errorf("cleanup panicked: %v", r)
			s.metrics.CleanupFinished("error", len(report.Evicted), time.Since(started))
		}
	}()

	s.scan(ctx, &report)
	report.Duration = time.Since(started)

	result := "ok"
	if len(report.Failed) > 0 {
		result = "partial"
	}
	s.metrics.CleanupFinished(result, len(report.Evicted), report.Duration)
	s.metrics.SetDynamicTopics(len(s.registry.Snapshot()))

	if len(report.Evicted) > 0 {
		s.logger.Info("Cleaned up unused topics", "evicted", report.Evicted)
	} else {
		s.logger.Debug("No unused topics to clean up", "scanned", report.Scanned)
	}

	s.mu.Lock()
	last := report
	s.last = &last
	s.mu.Unlock()

	return report, nil
}

// scan walks a snapshot of the dynamic topics. No registry lock is held
// while the broker is queried; eviction re-checks idleness atomically.
func (s *Scheduler) scan(ctx context.Context, report *Report) {
	snapshot := s.registry.Snapshot()
	now := s.registry.Now()
	report.Scanned = len(snapshot)

	for _, topic := range snapshot {
		if now.Sub(topic.LastUsedAt) <= s.cfg.IdleThreshold {
			continue
		}

		count, err := s.countSubscribers(ctx, topic.Name)
		if err != nil {
			qerr := &SubscriberQueryError{Topic: topic.Name, Err: err}
			s.logger.Warn("Skipping topic after failed subscriber query", "topic", topic.Name, "error", qerr)
			report.Failed = append(report.Failed, topic.Name)
			continue
		}
		if count > 0 {
			s.logger.Debug("Keeping idle topic with subscribers", "topic", topic.Name, "subscribers", count)
			report.Skipped = append(report.Skipped, topic.Name)
			continue
		}

		if s.registry.EvictIfIdle(topic.Name, s.cfg.IdleThreshold) {
			report.Evicted = append(report.Evicted, topic.Name)
		} else {
			report.Refreshed = append(report.Refreshed, topic.Name)
		}
	}
}

func (s *Scheduler) countSubscribers(ctx context.Context, topic string) (int64, error) {
	qctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	// The query runs on its own goroutine so a counter that ignores ctx
	// still cannot hold the scan past the timeout.
	type result struct {
		n   int64
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("subscriber query panicked: %v", r)}
			}
		}()
		n, err := s.counter.SubscriberCount(qctx, topic)
		ch <- result{n: n, err: err}
	}()

	select {
	case res := <-ch:
		return res.n, res.err
	case <-qctx.Done():
		return 0, qctx.Err()
	}
}
