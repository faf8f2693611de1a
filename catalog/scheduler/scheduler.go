// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package scheduler fires the recurring harvest jobs at fixed wall
// clock slots. Slots are deliberately placed at odd minutes so the
// service never queries the upstream at the top of the hour alongside
// everyone else's cron jobs.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

var (
	// Error is the default error class for the scheduler.
	Error = errs.Class("scheduler")

	mon = monkit.Package()
)

// Config holds configuration for the scheduler.
type Config struct {
	TickInterval    time.Duration `help:"how often the scheduler checks for due slots" default:"30s"`
	ShutdownTimeout time.Duration `help:"how long shutdown waits for running jobs" default:"5s"`
}

// Job is one recurring task. Hours lists the UTC hours the job fires
// at; nil means every hour. A job fires at most once per slot and never
// overlaps itself.
type Job struct {
	Name   string
	Hours  []int
	Minute int
	Run    func(ctx context.Context) error
}

// JobStatus is the reporting view of one job.
type JobStatus struct {
	Name    string
	Running bool
	LastRun time.Time
	LastErr string
	Runs    int
	Skips   int
	NextRun time.Time
}

type jobState struct {
	job Job

	mu       sync.Mutex
	running  bool
	lastSlot time.Time
	lastRun  time.Time
	lastErr  error
	runs     int
	skips    int
}

// Scheduler runs registered jobs at their slots.
type Scheduler struct {
	log    *zap.Logger
	config Config

	mu   sync.Mutex
	jobs []*jobState

	trigger chan string
	active  sync.WaitGroup

	nowFn func() time.Time
}

// New creates a scheduler.
func New(log *zap.Logger, config Config) *Scheduler {
	if config.TickInterval <= 0 {
		config.TickInterval = 30 * time.Second
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	return &Scheduler{
		log:     log,
		config:  config,
		trigger: make(chan string, 8),
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// Add registers a job. Jobs must be added before Run.
func (scheduler *Scheduler) Add(job Job) {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	scheduler.jobs = append(scheduler.jobs, &jobState{job: job})
}

// Run executes the scheduling loop until the context is canceled, then
// waits briefly for in-flight jobs.
func (scheduler *Scheduler) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	scheduler.log.Info("scheduler started",
		zap.Int("jobs", len(scheduler.states())),
		zap.Duration("tick", scheduler.config.TickInterval))

	ticker := time.NewTicker(scheduler.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return scheduler.drain()
		case name := <-scheduler.trigger:
			scheduler.fireByName(ctx, name)
		case <-ticker.C:
			scheduler.tick(ctx)
		}
	}
}

// Close implements the lifecycle close side; the loop itself stops with
// its context.
func (scheduler *Scheduler) Close() error { return nil }

// TriggerJob queues a manual run of the named job, bypassing its slot.
// The job's single-flight rule still applies.
func (scheduler *Scheduler) TriggerJob(name string) error {
	if scheduler.lookup(name) == nil {
		return Error.New("unknown job %q", name)
	}
	select {
	case scheduler.trigger <- name:
		return nil
	default:
		return Error.New("trigger queue full")
	}
}

// Status reports every job's state, ordered by name.
func (scheduler *Scheduler) Status() []JobStatus {
	now := scheduler.nowFn()

	var statuses []JobStatus
	for _, state := range scheduler.states() {
		state.mu.Lock()
		status := JobStatus{
			Name:    state.job.Name,
			Running: state.running,
			LastRun: state.lastRun,
			Runs:    state.runs,
			Skips:   state.skips,
			NextRun: nextSlot(state.job, now),
		}
		if state.lastErr != nil {
			status.LastErr = state.lastErr.Error()
		}
		state.mu.Unlock()
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// TestingSetNow allows tests to control the scheduler's clock.
func (scheduler *Scheduler) TestingSetNow(now func() time.Time) {
	scheduler.nowFn = now
}

// TestingTick runs one scheduling pass at the current test clock.
func (scheduler *Scheduler) TestingTick(ctx context.Context) {
	scheduler.tick(ctx)
}

// TestingWait blocks until all in-flight jobs have returned.
func (scheduler *Scheduler) TestingWait() {
	scheduler.active.Wait()
}

func (scheduler *Scheduler) states() []*jobState {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	return append([]*jobState(nil), scheduler.jobs...)
}

func (scheduler *Scheduler) lookup(name string) *jobState {
	for _, state := range scheduler.states() {
		if state.job.Name == name {
			return state
		}
	}
	return nil
}

// tick fires every job whose slot matches the current minute and has
// not fired for that slot yet.
func (scheduler *Scheduler) tick(ctx context.Context) {
	now := scheduler.nowFn()
	for _, state := range scheduler.states() {
		slot, due := currentSlot(state.job, now)
		if !due {
			continue
		}

		state.mu.Lock()
		seen := state.lastSlot.Equal(slot)
		if !seen {
			state.lastSlot = slot
		}
		state.mu.Unlock()
		if seen {
			continue
		}
		scheduler.fire(ctx, state)
	}
}

func (scheduler *Scheduler) fireByName(ctx context.Context, name string) {
	if state := scheduler.lookup(name); state != nil {
		scheduler.log.Info("job triggered manually", zap.String("job", name))
		scheduler.fire(ctx, state)
	}
}

// fire starts the job unless a previous run is still going, in which
// case the fire is counted as skipped.
func (scheduler *Scheduler) fire(ctx context.Context, state *jobState) {
	state.mu.Lock()
	if state.running {
		state.skips++
		state.mu.Unlock()
		scheduler.log.Warn("job still running, skipping this slot",
			zap.String("job", state.job.Name))
		mon.Event("scheduler_slot_skipped")
		return
	}
	state.running = true
	state.mu.Unlock()

	scheduler.active.Add(1)
	go func() {
		defer scheduler.active.Done()

		started := scheduler.nowFn()
		err := state.job.Run(ctx)

		state.mu.Lock()
		state.running = false
		state.lastRun = started
		state.lastErr = err
		state.runs++
		state.mu.Unlock()

		if err != nil && ctx.Err() == nil {
			scheduler.log.Error("job failed",
				zap.String("job", state.job.Name),
				zap.Duration("elapsed", scheduler.nowFn().Sub(started)),
				zap.Error(err))
			return
		}
		scheduler.log.Info("job finished",
			zap.String("job", state.job.Name),
			zap.Duration("elapsed", scheduler.nowFn().Sub(started)))
	}()
}

// drain gives running jobs a short grace period on shutdown.
func (scheduler *Scheduler) drain() error {
	done := make(chan struct{})
	go func() {
		scheduler.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(scheduler.config.ShutdownTimeout):
		scheduler.log.Warn("jobs still running at shutdown",
			zap.Duration("waited", scheduler.config.ShutdownTimeout))
		return nil
	}
}

// currentSlot reports whether now falls in one of the job's slots and
// returns the slot's canonical time.
func currentSlot(job Job, now time.Time) (time.Time, bool) {
	if now.Minute() != job.Minute {
		return time.Time{}, false
	}
	if len(job.Hours) > 0 && !containsHour(job.Hours, now.Hour()) {
		return time.Time{}, false
	}
	slot := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), job.Minute, 0, 0, now.Location())
	return slot, true
}

// nextSlot returns the job's next fire time strictly after now.
func nextSlot(job Job, now time.Time) time.Time {
	hours := job.Hours
	if len(hours) == 0 {
		hours = make([]int, 24)
		for i := range hours {
			hours[i] = i
		}
	}
	sorted := append([]int(nil), hours...)
	sort.Ints(sorted)

	for day := 0; day <= 1; day++ {
		base := now.AddDate(0, 0, day)
		for _, hour := range sorted {
			candidate := time.Date(base.Year(), base.Month(), base.Day(), hour, job.Minute, 0, 0, now.Location())
			if candidate.After(now) {
				return candidate
			}
		}
	}
	return time.Time{}
}

func containsHour(hours []int, hour int) bool {
	for _, h := range hours {
		if h == hour {
			return true
		}
	}
	return false
}
