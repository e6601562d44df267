package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gtrdotmcs/auto-trade/pkg/logger"
)

type fakeJob struct {
	name     string
	schedule string
	runs     atomic.Int64
	failures int64
}

func (j *fakeJob) Name() string     { return j.name }
func (j *fakeJob) Schedule() string { return j.schedule }

func (j *fakeJob) Run(ctx context.Context) error {
	n := j.runs.Add(1)
	if n <= j.failures {
		return errors.New("transient failure")
	}
	return nil
}

func TestAddJob(t *testing.T) {
	s := New(logger.NewNop())

	job := &fakeJob{name: "reconcile", schedule: "0 */30 * * * *"}
	if err := s.AddJob(job); err != nil {
		t.Fatalf("AddJob() failed: %v", err)
	}

	if err := s.AddJob(job); err == nil {
		t.Error("Expected error adding duplicate job, got nil")
	}

	names := s.Jobs()
	if len(names) != 1 || names[0] != "reconcile" {
		t.Errorf("Jobs() = %v, want [reconcile]", names)
	}
}

func TestAddJobInvalidSchedule(t *testing.T) {
	s := New(logger.NewNop())

	job := &fakeJob{name: "broken", schedule: "not a cron expression"}
	if err := s.AddJob(job); err == nil {
		t.Error("Expected error for invalid schedule, got nil")
	}

	if len(s.Jobs()) != 0 {
		t.Error("Job with invalid schedule must not be registered")
	}
}

func TestRunJobUnknown(t *testing.T) {
	s := New(logger.NewNop())

	if err := s.RunJob("ghost"); err == nil {
		t.Error("Expected error for unknown job, got nil")
	}
}

func TestRunJobRecordsHistory(t *testing.T) {
	s := New(logger.NewNop())

	job := &fakeJob{name: "export", schedule: "0 0 18 * * *"}
	if err := s.AddJob(job); err != nil {
		t.Fatal(err)
	}

	s.runJob(job)

	stats := s.Stats()
	js, ok := stats["export"]
	if !ok {
		t.Fatal("Expected stats for export job")
	}
	if js.TotalRuns != 1 || js.SuccessCount != 1 {
		t.Errorf("stats = %+v, want 1 successful run", js)
	}
	if js.SuccessRate != 1.0 {
		t.Errorf("SuccessRate = %v, want 1.0", js.SuccessRate)
	}
	if js.LastRun == nil {
		t.Error("Expected LastRun to be recorded")
	}
}

func TestRunJobRetriesTransientFailure(t *testing.T) {
	s := New(logger.NewNop())
	s.retryDelay = time.Millisecond

	job := &fakeJob{name: "flaky", schedule: "@hourly", failures: 2}
	if err := s.AddJob(job); err != nil {
		t.Fatal(err)
	}

	s.runJob(job)

	if got := job.runs.Load(); got != 3 {
		t.Errorf("runs = %d, want 3 (2 failures + 1 success)", got)
	}

	js := s.Stats()["flaky"]
	if js.SuccessCount != 1 || js.FailureCount != 0 {
		t.Errorf("stats = %+v, want the run counted as one success", js)
	}
}

func TestRunJobExhaustsRetries(t *testing.T) {
	s := New(logger.NewNop())
	s.retryDelay = time.Millisecond

	job := &fakeJob{name: "doomed", schedule: "@hourly", failures: 100}
	if err := s.AddJob(job); err != nil {
		t.Fatal(err)
	}

	s.runJob(job)

	js := s.Stats()["doomed"]
	if js.FailureCount != 1 {
		t.Errorf("FailureCount = %d, want 1", js.FailureCount)
	}

	last, ok := s.history["doomed"].Latest()
	if !ok || last.Error == "" {
		t.Error("Expected failed result with error message")
	}
}

func TestJobHistoryCap(t *testing.T) {
	h := &JobHistory{}

	for i := 0; i < 150; i++ {
		h.AddResult(JobResult{JobName: "x", Success: i%2 == 0})
	}

	if len(h.Results) != 100 {
		t.Errorf("history length = %d, want 100", len(h.Results))
	}
}
