package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"dash/internal/store"
)

// Controller schedules delayed restarts. Scheduling never blocks on the
// restart itself and the outcome is not reported back to the caller.
type Controller interface {
	ScheduleRestart(delay time.Duration) string
}

// History records restart outcomes.
type History interface {
	CompleteDeployment(ctx context.Context, jobID, status string, duration time.Duration, errMsg string) error
}

// Job is the outcome of one restart.
type Job struct {
	ID       string
	Status   string
	Duration time.Duration
	Output   string
	Err      error
}

// Scheduler is the Controller used in production. Restarts fire on a
// clockwork timer so tests can drive time explicitly.
type Scheduler struct {
	restarter  Restarter
	clock      clockwork.Clock
	history    History
	logger     *slog.Logger
	locks      *LockManager
	onComplete func(Job)

	mu      sync.Mutex
	pending map[string]clockwork.Timer
	stopped bool
	running sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// WithHistory records every finished job.
func WithHistory(h History) Option {
	return func(s *Scheduler) { s.history = h }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithOnComplete registers a callback invoked after each job finishes.
func WithOnComplete(fn func(Job)) Option {
	return func(s *Scheduler) { s.onComplete = fn }
}

// NewScheduler creates a Scheduler running restarter.
func NewScheduler(restarter Restarter, opts ...Option) *Scheduler {
	s := &Scheduler{
		restarter: restarter,
		clock:     clockwork.NewRealClock(),
		logger:    slog.Default(),
		locks:     NewLockManager(),
		pending:   make(map[string]clockwork.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScheduleRestart arms a timer that runs the restart after delay and
// returns the job id.
func (s *Scheduler) ScheduleRestart(delay time.Duration) string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		s.logger.Warn("Restart not scheduled, scheduler stopped", "job", id)
		return id
	}

	s.pending[id] = s.clock.AfterFunc(delay, func() { s.fire(id) })
	s.logger.Info("Restart scheduled", "job", id, "delay", delay.String())

	return id
}

// Pending returns the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.pending, id)
	s.running.Add(1)
	s.mu.Unlock()

	defer s.running.Done()
	s.finish(s.run(id))
}

func (s *Scheduler) run(id string) Job {
	job := Job{ID: id}
	target := s.restarter.Target()

	if !s.locks.TryLock(target) {
		job.Status = store.StatusSkipped
		job.Err = errors.New("restart already in progress")
		return job
	}
	defer s.locks.Unlock(target)

	s.logger.Info("Restart started", "job", id, "target", target)

	start := s.clock.Now()
	result, err := s.restarter.Restart(context.Background())
	job.Duration = s.clock.Since(start)
	if result != nil {
		job.Output = string(result.Output)
	}

	switch {
	case err != nil:
		job.Status = store.StatusFailed
		job.Err = err
	case result != nil && !result.OK():
		job.Status = store.StatusFailed
		job.Err = fmt.Errorf("restart exited with status %d", result.ExitCode)
	default:
		job.Status = store.StatusSuccess
	}

	return job
}

func (s *Scheduler) finish(job Job) {
	errMsg := ""
	if job.Err != nil {
		errMsg = job.Err.Error()
	}

	if job.Err != nil {
		s.logger.Error("Restart failed",
			"job", job.ID,
			"status", job.Status,
			"error", errMsg,
			"output", job.Output,
		)
	} else {
		s.logger.Info("Restart completed",
			"job", job.ID,
			"duration_seconds", job.Duration.Seconds(),
		)
	}

	if s.history != nil {
		if err := s.history.CompleteDeployment(context.Background(), job.ID, job.Status, job.Duration, errMsg); err != nil {
			s.logger.Error("Failed to record restart outcome", "job", job.ID, "error", err)
		}
	}

	if s.onComplete != nil {
		s.onComplete(job)
	}
}

// Stop disarms pending timers and waits for running restarts until ctx is
// done. Restarts scheduled after Stop are dropped.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	for id, timer := range s.pending {
		timer.Stop()
		s.logger.Warn("Pending restart dropped on shutdown", "job", id)
		delete(s.pending, id)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
