/**
 * @description
 * Cron scheduler setup for the escrow lifecycle jobs.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/transfa/escrow-service/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	chain  cron.Chain
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance. Jobs are wrapped with
// SkipIfStillRunning so a slow batch never overlaps itself.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))

	return &Scheduler{
		cron:   cron.New(),
		chain:  cron.NewChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// lifecycleJob wraps one task with the recover and no-overlap chain. The same
// wrapped instance must serve both the startup run and the cron entry, so the
// two can never execute concurrently for one task.
func (s *Scheduler) lifecycleJob(task func()) cron.Job {
	return s.chain.Then(cron.FuncJob(task))
}

// Start registers the jobs and starts the cron scheduler. Both jobs also run
// once immediately so a restart does not delay an overdue sweep.
func (s *Scheduler) Start() {
	expiry := s.lifecycleJob(s.jobs.ProcessExpiredTransfers)
	reminder := s.lifecycleJob(s.jobs.SendExpiryReminders)

	if _, err := s.cron.AddJob(s.config.ExpiryJobSchedule, expiry); err != nil {
		s.logger.Error("failed to schedule transfer expiry job", "error", err)
	} else {
		s.logger.Info("scheduled transfer expiry job", "schedule", s.config.ExpiryJobSchedule)
	}

	if _, err := s.cron.AddJob(s.config.ReminderJobSchedule, reminder); err != nil {
		s.logger.Error("failed to schedule expiry reminder job", "error", err)
	} else {
		s.logger.Info("scheduled expiry reminder job", "schedule", s.config.ReminderJobSchedule)
	}

	go expiry.Run()
	go reminder.Run()

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
