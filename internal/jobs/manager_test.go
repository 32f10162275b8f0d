package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func noop(context.Context) error { return nil }

func TestAddJob(t *testing.T) {
	m := NewManager()

	require.NoError(t, m.AddJob("cleanup-unused-topics", Daily3AM, noop))

	err := m.AddJob("cleanup-unused-topics", Hourly, noop)
	assert.ErrorIs(t, err, ErrJobExists)

	err = m.AddJob("broken", "not a schedule", noop)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")

	assert.Error(t, m.AddJob("nil-task", Hourly, nil))

	status, ok := m.Status("cleanup-unused-topics")
	require.True(t, ok)
	assert.Equal(t, Daily3AM, status.Schedule)
	assert.Equal(t, "UTC", status.Timezone)
	assert.False(t, status.Running)
	assert.Zero(t, status.Runs)

	_, ok = m.Status("broken")
	assert.False(t, ok)
}

func TestScheduleConstantsParse(t *testing.T) {
	m := NewManager()
	for i, spec := range []string{
		EveryMinute, Every5Minutes, Every15Minutes, Every30Minutes,
		Hourly, DailyMidnight, Daily3AM, WeeklySunday3AM, Monthly1st3AM,
	} {
		assert.NoError(t, m.AddJob(string(rune('a'+i)), spec, noop), spec)
	}
}

func TestWithTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("timezone database unavailable")
	}

	m := NewManager()
	require.NoError(t, m.AddJob("berlin", Daily3AM, noop, WithTimezone(loc)))

	status, _ := m.Status("berlin")
	assert.Equal(t, "Europe/Berlin", status.Timezone)
}

func TestAddJob_SpecTimezone(t *testing.T) {
	if _, err := time.LoadLocation("America/New_York"); err != nil {
		t.Skip("timezone database unavailable")
	}

	tests := []struct {
		name string
		spec string
		opts []JobOption
		want string
	}{
		{"cron tz token", "CRON_TZ=America/New_York 0 3 * * *", nil, "America/New_York"},
		{"tz token", "TZ=America/New_York 0 3 * * *", nil, "America/New_York"},
		{"token wins over option", "CRON_TZ=America/New_York 0 3 * * *", []JobOption{WithTimezone(time.UTC)}, "America/New_York"},
		{"plain spec", Daily3AM, nil, "UTC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager()
			require.NoError(t, m.AddJob("cleanup", tt.spec, noop, tt.opts...))

			status, ok := m.Status("cleanup")
			require.True(t, ok)
			assert.Equal(t, tt.want, status.Timezone)
			assert.Equal(t, tt.spec, status.Schedule)
		})
	}
}

func TestAddJob_BadSpecTimezone(t *testing.T) {
	m := NewManager()
	err := m.AddJob("cleanup", "CRON_TZ=Mars/Olympus 0 3 * * *", noop)
	assert.ErrorContains(t, err, "invalid schedule")
}

func TestRunNow(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		m := NewManager()
		var calls atomic.Int32
		require.NoError(t, m.AddJob("count", Hourly, func(context.Context) error {
			calls.Add(1)
			return nil
		}))

		require.NoError(t, m.RunNow(ctx, "count"))
		assert.Equal(t, int32(1), calls.Load())

		status, _ := m.Status("count")
		assert.Equal(t, 1, status.Runs)
		assert.False(t, status.LastRun.IsZero())
		assert.Empty(t, status.LastError)
	})

	t.Run("failure reaches onError", func(t *testing.T) {
		m := NewManager()
		var reported error
		var reportedName string
		require.NoError(t, m.AddJob("fails", Hourly,
			func(context.Context) error { return errors.New("redis down") },
			WithOnError(func(ctx context.Context, name string, err error) {
				reportedName = name
				reported = err
			})))

		err := m.RunNow(ctx, "fails")
		assert.EqualError(t, err, "redis down")
		assert.Equal(t, "fails", reportedName)
		assert.EqualError(t, reported, "redis down")

		status, _ := m.Status("fails")
		assert.Equal(t, "redis down", status.LastError)
	})

	t.Run("panic is contained", func(t *testing.T) {
		m := NewManager()
		require.NoError(t, m.AddJob("panics", Hourly, func(context.Context) error {
			panic("boom")
		}))

		var err error
		assert.NotPanics(t, func() { err = m.RunNow(ctx, "panics") })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panicked")

		// The job can run again afterwards.
		err = m.RunNow(ctx, "panics")
		assert.NotErrorIs(t, err, ErrJobRunning)
	})

	t.Run("unknown job", func(t *testing.T) {
		m := NewManager()
		assert.ErrorIs(t, m.RunNow(ctx, "missing"), ErrJobNotFound)
	})

	t.Run("overlap is rejected", func(t *testing.T) {
		m := NewManager()
		release := make(chan struct{})
		started := make(chan struct{})
		require.NoError(t, m.AddJob("slow", Hourly, func(context.Context) error {
			close(started)
			<-release
			return nil
		}))

		done := make(chan error)
		go func() { done <- m.RunNow(ctx, "slow") }()
		<-started

		status, _ := m.Status("slow")
		assert.True(t, status.Running)
		assert.ErrorIs(t, m.RunNow(ctx, "slow"), ErrJobRunning)

		close(release)
		assert.NoError(t, <-done)
	})
}

func TestStartStopJob(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.AddJob("cleanup", Daily3AM, noop))

	m.Start()
	defer func() { _ = m.Stop(context.Background()) }()

	status, _ := m.Status("cleanup")
	assert.True(t, status.Enabled)
	require.Eventually(t, func() bool {
		s, _ := m.Status("cleanup")
		return !s.NextRun.IsZero()
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.StopJob("cleanup"))
	status, _ = m.Status("cleanup")
	assert.False(t, status.Enabled)
	assert.True(t, status.NextRun.IsZero())

	require.NoError(t, m.StartJob("cleanup"))
	status, _ = m.Status("cleanup")
	assert.True(t, status.Enabled)

	assert.ErrorIs(t, m.StopJob("missing"), ErrJobNotFound)
	assert.ErrorIs(t, m.StartJob("missing"), ErrJobNotFound)
}

func TestStatusAllIsSorted(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.AddJob("zeta", Hourly, noop))
	require.NoError(t, m.AddJob("alpha", Hourly, noop))
	require.NoError(t, m.AddJob("mid", Hourly, noop))

	var names []string
	for _, s := range m.StatusAll() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestScheduledRunAndStop(t *testing.T) {
	m := NewManager()
	fired := make(chan struct{}, 1)
	require.NoError(t, m.AddJob("tick", "@every 1s", func(context.Context) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	}))

	m.Start()
	m.Start()

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job never fired")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx))
	require.NoError(t, m.Stop(ctx))

	status, _ := m.Status("tick")
	assert.GreaterOrEqual(t, status.Runs, 1)
	assert.False(t, status.Enabled)
}

func TestStopCancelsJobsAfterDeadline(t *testing.T) {
	m := NewManager()
	sawCancel := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, m.AddJob("stuck", "@every 1s", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(sawCancel)
		return ctx.Err()
	}))

	m.Start()
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job never fired")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Stop(ctx), context.DeadlineExceeded)

	select {
	case <-sawCancel:
	case <-time.After(time.Second):
		t.Fatal("job context was not cancelled")
	}
}
