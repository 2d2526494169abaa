// Package scheduler runs the pipeline's periodic maintenance jobs
// (confidence recalibration, distillation spooling, cache sweeps) on cron
// schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pario-ai/glimpse/pkg/clock"
)

// parser accepts standard 5-field expressions and descriptors such as
// "@hourly" or "@every 10m".
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Parse validates a schedule expression.
func Parse(spec string) (cron.Schedule, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return sched, nil
}

// JobFunc is one run of a job. Errors are logged; the job keeps its schedule.
type JobFunc func(ctx context.Context) error

type job struct {
	name  string
	spec  string
	sched cron.Schedule
	fn    JobFunc

	runs     atomic.Int64
	failures atomic.Int64
}

// JobStats reports a job's run counters.
type JobStats struct {
	Name     string
	Schedule string
	Runs     int64
	Failures int64
}

// Scheduler runs registered jobs until its context is cancelled. Runs of the
// same job never overlap.
type Scheduler struct {
	clock clock.Clock
	log   *zap.Logger

	mu      sync.Mutex
	jobs    []*job
	running bool
}

// New creates a Scheduler.
func New(c clock.Clock, log *zap.Logger) *Scheduler {
	if c == nil {
		c = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{clock: c, log: log.Named("scheduler")}
}

// Add registers a job. An empty spec disables the job.
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	if spec == "" {
		s.log.Debug("job disabled", zap.String("job", name))
		return nil
	}
	sched, err := Parse(spec)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("job %s: scheduler already running", name)
	}
	s.jobs = append(s.jobs, &job{name: name, spec: spec, sched: sched, fn: fn})
	return nil
}

// Run blocks until ctx is cancelled, running each job at its scheduled
// times.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	jobs := append([]*job(nil), s.jobs...)
	s.mu.Unlock()

	if len(jobs) == 0 {
		<-ctx.Done()
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		g.Go(func() error {
			s.loop(gctx, j)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	log := s.log.With(zap.String("job", j.name))
	for {
		now := s.clock.Now()
		wait := j.sched.Next(now).Sub(now)
		t := s.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C():
		}

		start := s.clock.Now()
		err := j.fn(ctx)
		j.runs.Add(1)
		if err != nil {
			j.failures.Add(1)
			log.Warn("job failed", zap.Error(err))
			continue
		}
		log.Debug("job finished", zap.Duration("took", s.clock.Now().Sub(start)))
	}
}

// Stats returns counters for each registered job, in registration order.
func (s *Scheduler) Stats() []JobStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStats, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, JobStats{
			Name:     j.name,
			Schedule: j.spec,
			Runs:     j.runs.Load(),
			Failures: j.failures.Load(),
		})
	}
	return out
}

// NextRun returns when spec fires next after from.
func NextRun(spec string, from time.Time) (time.Time, error) {
	sched, err := Parse(spec)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}
