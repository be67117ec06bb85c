// Package scheduler runs a recurring job on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled pass. It should return when ctx is cancelled.
type Job func(ctx context.Context) error

// Scheduler runs a Job on a cron spec with a leading seconds field.
// Overlapping runs are skipped.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
	name string
	job  Job
	log  *slog.Logger

	runs     atomic.Int64
	failures atomic.Int64
}

// New creates a Scheduler that runs job on spec, evaluated in loc. The
// context is passed to every run.
func New(ctx context.Context, name, spec string, loc *time.Location, job Job, log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "scheduler", "job", name)
	if loc == nil {
		loc = time.Local
	}

	cl := cron.PrintfLogger(slog.NewLogLogger(log.Handler(), slog.LevelWarn))
	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:  ctx,
		name: name,
		job:  job,
		log:  log,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("register %s task: %w", name, err)
	}
	return s, nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "next", s.Next())
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped", "runs", s.runs.Load(), "failures", s.failures.Load())
}

// RunNow executes the job immediately, outside the schedule.
func (s *Scheduler) RunNow() {
	s.run()
}

// Next returns the next scheduled run time, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Runs returns how many times the job has run and how many of those failed.
func (s *Scheduler) Runs() (runs, failures int64) {
	return s.runs.Load(), s.failures.Load()
}

func (s *Scheduler) run() {
	if s.ctx.Err() != nil {
		return
	}
	start := time.Now()
	s.runs.Add(1)
	s.log.Info("running task")
	if err := s.job(s.ctx); err != nil {
		s.failures.Add(1)
		s.log.Error("task failed", "err", err, "elapsed", time.Since(start).Round(time.Millisecond))
		return
	}
	s.log.Info("task done", "elapsed", time.Since(start).Round(time.Millisecond))
}
