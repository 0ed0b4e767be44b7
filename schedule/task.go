package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrInvalidInterval = errors.New("schedule: job interval must be greater than 0")
	ErrNoTasks         = errors.New("schedule: job must have at least one task")
)

// Task is one unit of work of a job.
type Task func(ctx context.Context) error

type Job struct {
	name     string
	tasks    []Task
	interval time.Duration
	timeout  time.Duration

	mu                sync.RWMutex
	nextExecuteAt     time.Time
	previousExecuteAt time.Time
	running           atomic.Bool
}

func NewJob(name string, interval time.Duration, tasks ...Task) *Job {
	return &Job{
		name:     name,
		interval: interval,
		tasks:    tasks,
	}
}

// WithTimeout bounds every task run through its context.
func (job *Job) WithTimeout(timeout time.Duration) *Job {
	job.timeout = timeout
	return job
}

// WithExecuteAt sets the first execution time. By default a job first runs
// one interval after it was added.
func (job *Job) WithExecuteAt(executeAt time.Time) *Job {
	job.nextExecuteAt = executeAt
	return job
}

func (job *Job) Name() string { return job.name }

func (job *Job) Tasks() []Task { return job.tasks }

// LastRun returns when the job last started, or the zero time.
func (job *Job) LastRun() time.Time {
	job.mu.RLock()
	defer job.mu.RUnlock()
	return job.previousExecuteAt
}

func (job *Job) shouldExecute(now time.Time) bool {
	job.mu.RLock()
	defer job.mu.RUnlock()
	return !job.nextExecuteAt.After(now)
}

func (job *Job) updateNextExecution(now time.Time) {
	job.mu.Lock()
	defer job.mu.Unlock()
	job.previousExecuteAt = now
	job.nextExecuteAt = now.Add(job.interval)
}

type Option func(*Scheduler)

// WithResolution sets how often due jobs are checked. Defaults to a second.
func WithResolution(d time.Duration) Option {
	return func(s *Scheduler) {
		s.resolution = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// Scheduler runs jobs at fixed intervals. A job never overlaps with itself;
// a run that is still going when the job is due again is skipped.
type Scheduler struct {
	jobs       []*Job
	mu         sync.RWMutex
	resolution time.Duration
	logger     *slog.Logger
	wg         sync.WaitGroup
}

func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:       make([]*Job, 0),
		resolution: time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (scheduler *Scheduler) AddJob(job *Job) error {
	if job.interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, job.name)
	}
	if len(job.tasks) == 0 {
		return fmt.Errorf("%w: %s", ErrNoTasks, job.name)
	}

	job.mu.Lock()
	if job.nextExecuteAt.IsZero() {
		job.nextExecuteAt = time.Now().Add(job.interval)
	}
	job.mu.Unlock()

	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	scheduler.jobs = append(scheduler.jobs, job)
	return nil
}

// Run executes due jobs until ctx is done, then waits for running jobs.
func (scheduler *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(scheduler.resolution)
	defer ticker.Stop()
	defer scheduler.wg.Wait()

	for {
		select {
		case now := <-ticker.C:
			scheduler.mu.RLock()
			jobs := make([]*Job, len(scheduler.jobs))
			copy(jobs, scheduler.jobs)
			scheduler.mu.RUnlock()

			for _, job := range jobs {
				if !job.shouldExecute(now) || !job.running.CompareAndSwap(false, true) {
					continue
				}
				scheduler.wg.Add(1)
				go scheduler.executeJob(ctx, job, now)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (scheduler *Scheduler) executeJob(ctx context.Context, job *Job, now time.Time) {
	defer scheduler.wg.Done()
	defer job.running.Store(false)

	for _, task := range job.tasks {
		if err := scheduler.executeTask(ctx, task, job.timeout); err != nil {
			scheduler.logger.Warn("task execution failed", "job", job.name, "error", err)
		}
	}

	job.updateNextExecution(now)
}

func (scheduler *Scheduler) executeTask(ctx context.Context, task Task, timeout time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return task(ctx)
}
