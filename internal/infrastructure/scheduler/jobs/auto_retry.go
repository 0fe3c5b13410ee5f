// Package jobs holds the scheduled jobs for the session pipeline.
package jobs

import (
	"context"
	"log/slog"
)

// retrySweeper is the slice of the session manager the sweep job needs.
type retrySweeper interface {
	SweepAutoRetries(ctx context.Context) (eligible int, err error)
}

// AutoRetryJob periodically re-attempts failed track resolutions on the
// current session, up to the per-track attempt cap.
type AutoRetryJob struct {
	manager retrySweeper
	logger  *slog.Logger
}

// NewAutoRetryJob creates the sweep job.
func NewAutoRetryJob(manager retrySweeper, logger *slog.Logger) *AutoRetryJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AutoRetryJob{manager: manager, logger: logger}
}

// Name returns the unique job name.
func (j *AutoRetryJob) Name() string {
	return "auto_retry_sweep"
}

// Description returns a human-readable description.
func (j *AutoRetryJob) Description() string {
	return "re-attempts failed track resolutions on the current session"
}

// Run performs one sweep.
func (j *AutoRetryJob) Run(ctx context.Context) error {
	eligible, err := j.manager.SweepAutoRetries(ctx)
	if err != nil {
		return err
	}
	if eligible > 0 {
		j.logger.Info("auto-retry sweep dispatched", "tracks", eligible)
	}
	return nil
}
