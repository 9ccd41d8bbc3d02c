package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Job is one scheduled unit of work.
type Job struct {
	ID  string
	Run func(ctx context.Context) error
}

// Notifier receives the outcome of every job run.
type Notifier interface {
	Notify(jobID string, err error)
}

// Config holds scheduler configuration.
type Config struct {
	Hour          int  // UTC hour of the daily trigger (default: 12)
	MaxConcurrent int  // Jobs run at the same time (default: 1)
	RunOnStart    bool // Also run every job when started
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Hour:          12,
		MaxConcurrent: 1,
	}
}

// Scheduler triggers jobs daily.
type Scheduler struct {
	cfg      Config
	jobs     []Job
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[string]bool
}

// New creates a scheduler. notifier may be nil.
func New(cfg Config, jobs []Job, notifier Notifier, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Scheduler{
		cfg:      cfg,
		jobs:     jobs,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		running:  make(map[string]bool),
	}
}

// Start begins the trigger loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.jobs) == 0 {
		return errors.New("no jobs to schedule")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.loop()

	s.logger.Info("scheduler started",
		"jobs", len(s.jobs),
		"hour", s.cfg.Hour,
		"max_concurrent", s.cfg.MaxConcurrent,
		"run_on_start", s.cfg.RunOnStart,
	)
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	if s.cfg.RunOnStart {
		s.RunOnce(s.ctx)
	}

	for {
		next := NextRun(s.now(), s.cfg.Hour)
		s.logger.Info("next run scheduled", "at", next)

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.RunOnce(s.ctx)
		}
	}
}

// RunOnce runs every job now and waits for all of them. The returned error
// joins the failures of individual jobs.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(s.cfg.MaxConcurrent)

	for _, job := range s.jobs {
		job := job // per-iteration copy (go directive < 1.22)
		g.Go(func() error {
			if err := s.runJob(ctx, job); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	s.logger.Info("run cycle complete",
		"jobs", len(s.jobs),
		"failed", len(errs),
		"duration", time.Since(start),
	)
	return errors.Join(errs...)
}

// runJob runs one job, converting panics to errors, and notifies.
func (s *Scheduler) runJob(ctx context.Context, job Job) (err error) {
	if !s.claim(job.ID) {
		s.logger.Warn("job still running, trigger skipped", "job", job.ID)
		return nil
	}
	defer s.release(job.ID)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
		if err != nil {
			s.logger.Error("job failed", "job", job.ID, "err", err)
		}
		if s.notifier != nil {
			s.notifier.Notify(job.ID, err)
		}
	}()

	s.logger.Info("job triggered", "job", job.ID)
	return job.Run(ctx)
}

func (s *Scheduler) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[id] {
		return false
	}
	s.running[id] = true
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
}

// NextRun returns the first trigger at hour:00 UTC strictly after now.
func NextRun(now time.Time, hour int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
