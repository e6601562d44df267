// Package jobs defines the scheduled jobs of the trading engine.
package jobs

import (
	"context"
	"fmt"

	"github.com/gtrdotmcs/auto-trade/internal/execution"
	"github.com/gtrdotmcs/auto-trade/pkg/logger"
)

// ReconcileJob periodically compares internal positions against the
// broker's account view.
type ReconcileJob struct {
	engine   *execution.Engine
	logger   *logger.Logger
	schedule string
}

// NewReconcileJob creates the position reconciliation job
func NewReconcileJob(engine *execution.Engine, log *logger.Logger, schedule string) *ReconcileJob {
	if schedule == "" {
		// 장중 30분마다
		schedule = "0 */30 * * * *"
	}
	return &ReconcileJob{
		engine:   engine,
		logger:   log,
		schedule: schedule,
	}
}

// Name implements scheduler.Job
func (j *ReconcileJob) Name() string { return "position-reconcile" }

// Schedule implements scheduler.Job
func (j *ReconcileJob) Schedule() string { return j.schedule }

// Run implements scheduler.Job
func (j *ReconcileJob) Run(ctx context.Context) error {
	results, err := j.engine.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("position reconciliation: %w", err)
	}

	mismatches := 0
	for _, r := range results {
		if !r.Match {
			mismatches++
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"checked":    len(results),
		"mismatches": mismatches,
	}).Info("Position reconciliation finished")

	return nil
}
