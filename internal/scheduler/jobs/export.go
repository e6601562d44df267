package jobs

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gtrdotmcs/auto-trade/internal/execution"
	"github.com/gtrdotmcs/auto-trade/pkg/logger"
)

// ExportJob writes the daily execution summary and audit trail to disk
type ExportJob struct {
	engine    *execution.Engine
	logger    *logger.Logger
	exportDir string
	schedule  string
}

// NewExportJob creates the daily export job
func NewExportJob(engine *execution.Engine, log *logger.Logger, exportDir, schedule string) *ExportJob {
	if schedule == "" {
		// 장 마감 후 18:00
		schedule = "0 0 18 * * *"
	}
	return &ExportJob{
		engine:    engine,
		logger:    log,
		exportDir: exportDir,
		schedule:  schedule,
	}
}

// Name implements scheduler.Job
func (j *ExportJob) Name() string { return "daily-export" }

// Schedule implements scheduler.Job
func (j *ExportJob) Schedule() string { return j.schedule }

// Run implements scheduler.Job
func (j *ExportJob) Run(ctx context.Context) error {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	path := filepath.Join(j.exportDir, fmt.Sprintf("execution-%s.json", now.Format("2006-01-02")))
	if err := j.engine.Export(path, &start, &now); err != nil {
		return fmt.Errorf("daily export: %w", err)
	}

	j.logger.WithField("path", path).Info("Daily execution export written")
	return nil
}
