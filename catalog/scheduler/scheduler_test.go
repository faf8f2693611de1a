// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"
	"storj.io/satwatch/catalog/scheduler"
)

func newTestScheduler(t *testing.T) *scheduler.Scheduler {
	return scheduler.New(zaptest.NewLogger(t), scheduler.Config{
		TickInterval:    time.Second,
		ShutdownTimeout: time.Second,
	})
}

func TestFiresAtSlot(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	sched := newTestScheduler(t)

	var runs atomic.Int64
	sched.Add(scheduler.Job{
		Name:   "tle-refresh",
		Hours:  []int{2, 8, 14, 20},
		Minute: 17,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	clock := time.Date(2024, 5, 1, 8, 17, 3, 0, time.UTC)
	sched.TestingSetNow(func() time.Time { return clock })

	sched.TestingTick(ctx)
	sched.TestingWait()
	require.EqualValues(t, 1, runs.Load())

	// The same slot never fires twice, even across multiple ticks.
	clock = clock.Add(30 * time.Second)
	sched.TestingTick(ctx)
	sched.TestingWait()
	require.EqualValues(t, 1, runs.Load())

	// An hour outside the job's slots does not fire.
	clock = time.Date(2024, 5, 1, 9, 17, 0, 0, time.UTC)
	sched.TestingTick(ctx)
	sched.TestingWait()
	require.EqualValues(t, 1, runs.Load())

	// The next listed hour fires again.
	clock = time.Date(2024, 5, 1, 14, 17, 0, 0, time.UTC)
	sched.TestingTick(ctx)
	sched.TestingWait()
	require.EqualValues(t, 2, runs.Load())
}

func TestEveryHourJob(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	sched := newTestScheduler(t)

	var runs atomic.Int64
	sched.Add(scheduler.Job{
		Name:   "pool-health",
		Minute: 47,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	for hour := 0; hour < 3; hour++ {
		clock := time.Date(2024, 5, 1, hour, 47, 0, 0, time.UTC)
		sched.TestingSetNow(func() time.Time { return clock })
		sched.TestingTick(ctx)
	}
	sched.TestingWait()
	require.EqualValues(t, 3, runs.Load())
}

func TestOverlappingSlotIsSkipped(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	sched := newTestScheduler(t)

	release := make(chan struct{})
	var runs atomic.Int64
	sched.Add(scheduler.Job{
		Name:   "slow-backfill",
		Hours:  []int{3},
		Minute: 47,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			<-release
			return nil
		},
	})

	clock := time.Date(2024, 5, 1, 3, 47, 0, 0, time.UTC)
	sched.TestingSetNow(func() time.Time { return clock })
	sched.TestingTick(ctx)

	// The next day's slot arrives while the job still runs: skipped,
	// not queued.
	clock = clock.AddDate(0, 0, 1)
	sched.TestingTick(ctx)

	close(release)
	sched.TestingWait()
	require.EqualValues(t, 1, runs.Load())

	status := sched.Status()
	require.Len(t, status, 1)
	require.Equal(t, 1, status[0].Runs)
	require.Equal(t, 1, status[0].Skips)
	require.False(t, status[0].Running)
}

func TestTriggerJob(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	sched := newTestScheduler(t)

	ran := make(chan struct{}, 1)
	sched.Add(scheduler.Job{
		Name:   "metadata-sync",
		Hours:  []int{17},
		Minute: 27,
		Run: func(ctx context.Context) error {
			ran <- struct{}{}
			return nil
		},
	})

	require.Error(t, sched.TriggerJob("no-such-job"))
	require.NoError(t, sched.TriggerJob("metadata-sync"))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- sched.Run(runCtx) }()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("triggered job did not run")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestNextRunReporting(t *testing.T) {
	sched := newTestScheduler(t)
	sched.Add(scheduler.Job{
		Name:   "tle-refresh",
		Hours:  []int{2, 8, 14, 20},
		Minute: 17,
		Run:    func(ctx context.Context) error { return nil },
	})

	sched.TestingSetNow(func() time.Time {
		return time.Date(2024, 5, 1, 21, 0, 0, 0, time.UTC)
	})

	status := sched.Status()
	require.Len(t, status, 1)
	// Past the last slot of the day: the next run is tomorrow's first.
	require.Equal(t, time.Date(2024, 5, 2, 2, 17, 0, 0, time.UTC), status[0].NextRun)
}
