// Package jobs runs the periodic maintenance work of the long-lived binaries.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler wraps a gocron scheduler with singleton, named duration jobs.
type Scheduler struct {
	s   gocron.Scheduler
	log *slog.Logger
}

// New creates a stopped scheduler.
func New(log *slog.Logger, opts ...gocron.SchedulerOption) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Scheduler{s: s, log: log}, nil
}

// Every registers task to run immediately and then once per interval. A run
// that overlaps the previous one is rescheduled instead of stacking.
func (s *Scheduler) Every(ctx context.Context, name string, interval time.Duration, task func(context.Context)) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	_, err := s.s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	s.log.Debug("job scheduled", "job", name, "interval", interval)
	return nil
}

// Jobs returns the names of the registered jobs.
func (s *Scheduler) Jobs() []string {
	var names []string
	for _, j := range s.s.Jobs() {
		names = append(names, j.Name())
	}
	return names
}

func (s *Scheduler) Start() {
	s.s.Start()
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	return s.s.Shutdown()
}
