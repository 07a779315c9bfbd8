// Package scheduler runs recurring jobs on cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps a cron runner. Jobs are registered before Start and run
// on their own goroutines until Stop.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// New creates a stopped scheduler.
func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		logger: logger,
	}
}

// Register adds a job under a standard 5-field cron expression.
func (s *Scheduler) Register(name, spec string, job func()) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Debug("running scheduled job", "job", name)
		job()
	})
	if err != nil {
		return fmt.Errorf("register job %q: %w", name, err)
	}
	return nil
}

// Start begins executing registered jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for in-flight jobs, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
