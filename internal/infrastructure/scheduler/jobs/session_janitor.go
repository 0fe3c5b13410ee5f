package jobs

import (
	"context"
	"log/slog"
	"time"
)

// sessionPruner is the slice of the session manager the janitor needs.
type sessionPruner interface {
	PruneSuperseded(olderThan time.Duration) int
}

// SessionJanitorJob drops superseded sessions that have aged past retention,
// keeping the in-memory session map bounded between evictions.
type SessionJanitorJob struct {
	manager   sessionPruner
	retention time.Duration
	logger    *slog.Logger
}

// NewSessionJanitorJob creates the janitor. retention <= 0 defaults to an
// hour.
func NewSessionJanitorJob(manager sessionPruner, retention time.Duration, logger *slog.Logger) *SessionJanitorJob {
	if retention <= 0 {
		retention = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionJanitorJob{manager: manager, retention: retention, logger: logger}
}

// Name returns the unique job name.
func (j *SessionJanitorJob) Name() string {
	return "session_janitor"
}

// Description returns a human-readable description.
func (j *SessionJanitorJob) Description() string {
	return "removes superseded sessions past their retention window"
}

// Run performs one cleanup pass.
func (j *SessionJanitorJob) Run(ctx context.Context) error {
	if pruned := j.manager.PruneSuperseded(j.retention); pruned > 0 {
		j.logger.Info("sessions pruned", "count", pruned)
	}
	return nil
}
