/**
 * @description
 * Scheduled job implementations for the escrow-service.
 */
package app

import (
	"context"
	"log/slog"
	"time"
)

// LifecycleRunner defines the batch operations the jobs drive. Implemented by
// Service; stubbed in tests.
type LifecycleRunner interface {
	ExpirePendingTransfers(ctx context.Context) (int, error)
	SendExpiryReminders(ctx context.Context) (int, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	runner  LifecycleRunner
	logger  *slog.Logger
	timeout time.Duration
}

// NewJobs creates a new Jobs runner. timeout bounds one batch run.
func NewJobs(runner LifecycleRunner, logger *slog.Logger, timeout time.Duration) *Jobs {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Jobs{
		runner:  runner,
		logger:  logger,
		timeout: timeout,
	}
}

// ProcessExpiredTransfers refunds every pending transfer past its expiry.
func (j *Jobs) ProcessExpiredTransfers() {
	j.logger.Info("starting transfer expiry job")
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	count, err := j.runner.ExpirePendingTransfers(ctx)
	if err != nil {
		j.logger.Error("transfer expiry job failed", "error", err)
		return
	}

	j.logger.Info("transfer expiry job finished", "expired", count)
}

// SendExpiryReminders notifies recipients of transfers close to expiry.
func (j *Jobs) SendExpiryReminders() {
	j.logger.Info("starting expiry reminder job")
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	count, err := j.runner.SendExpiryReminders(ctx)
	if err != nil {
		j.logger.Error("expiry reminder job failed", "error", err)
		return
	}

	j.logger.Info("expiry reminder job finished", "reminders", count)
}
