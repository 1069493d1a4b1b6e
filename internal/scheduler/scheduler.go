package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/i474232898/pm25-forecast/internal/forecast"
)

// CycleRunner runs one forecast publishing cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (forecast.Document, error)
}

// Scheduler periodically runs forecast cycles.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    CycleRunner
	interval  time.Duration
	timeout   time.Duration
	logger    zerolog.Logger
}

// New creates a new Scheduler.
func New(runner CycleRunner, interval, timeout time.Duration, logger zerolog.Logger) *Scheduler {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	s := gocron.NewScheduler(time.UTC)
	// A slow cycle must not overlap with the next one.
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		interval:  interval,
		timeout:   timeout,
		logger:    logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start schedules the periodic job, runs it immediately once, and starts the
// underlying scheduler.
func (s *Scheduler) Start() error {
	interval := s.interval
	if interval <= 0 {
		interval = time.Hour
	}

	_, err := s.scheduler.Every(interval).Do(s.runOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) runOnce() {
	s.logger.Info().Msg("running forecast cycle")

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	doc, err := s.runner.RunCycle(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", doc.RunID).Msg("forecast cycle finished with errors")
		return
	}
	s.logger.Info().Str("run_id", doc.RunID).Msg("completed forecast cycle")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
