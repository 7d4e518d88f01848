package schedule

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	pkgerrors "speedlog/pkg/errors"
)

// Scheduler runs periodic background jobs, such as the summary report,
// alongside the measurement loop.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a new job scheduler. A nil clock uses the real clock.
func NewScheduler(clock clockwork.Clock, logger *zap.Logger) (*Scheduler, error) {
	var opts []gocron.SchedulerOption
	if clock != nil {
		opts = append(opts, gocron.WithClock(clock))
	}
	scheduler, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		scheduler: scheduler,
		logger:    logger,
	}, nil
}

// Every schedules task to run every interval. When immediate is set the
// task also runs as soon as the scheduler starts.
func (s *Scheduler) Every(name string, interval time.Duration, immediate bool, task func()) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %v for job %q", interval, name)
	}
	opts := []gocron.JobOption{gocron.WithName(name)}
	if immediate {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			s.logger.Debug("running scheduled job", zap.String("job", name))
			task()
		}),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to create job %q: %w", name, err)
	}
	return nil
}

// Jobs returns the number of scheduled jobs.
func (s *Scheduler) Jobs() int {
	return len(s.scheduler.Jobs())
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return pkgerrors.ErrSchedulerRunning
	}
	s.scheduler.Start()
	s.running = true
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return pkgerrors.ErrSchedulerStopped
	}
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	s.running = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
