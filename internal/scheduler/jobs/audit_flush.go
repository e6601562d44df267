package jobs

import (
	"context"
	"fmt"

	"github.com/gtrdotmcs/auto-trade/internal/audit"
	"github.com/gtrdotmcs/auto-trade/internal/execution"
	"github.com/gtrdotmcs/auto-trade/pkg/logger"
)

// AuditFlushJob mirrors new audit trail entries to PostgreSQL
type AuditFlushJob struct {
	repo     *execution.Repository
	trail    *audit.Trail
	logger   *logger.Logger
	schedule string
}

// NewAuditFlushJob creates the audit persistence job
func NewAuditFlushJob(repo *execution.Repository, trail *audit.Trail, log *logger.Logger, schedule string) *AuditFlushJob {
	if schedule == "" {
		schedule = "0 * * * * *" // every minute
	}
	return &AuditFlushJob{
		repo:     repo,
		trail:    trail,
		logger:   log,
		schedule: schedule,
	}
}

// Name implements scheduler.Job
func (j *AuditFlushJob) Name() string { return "audit-flush" }

// Schedule implements scheduler.Job
func (j *AuditFlushJob) Schedule() string { return j.schedule }

// Run implements scheduler.Job
func (j *AuditFlushJob) Run(ctx context.Context) error {
	written, err := j.repo.FlushAudit(ctx, j.trail)
	if err != nil {
		return fmt.Errorf("audit flush: %w", err)
	}

	if written > 0 {
		j.logger.WithField("entries", written).Debug("Audit entries persisted")
	}
	return nil
}
