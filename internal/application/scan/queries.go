package scan

import (
	"context"

	"github.com/khanhnv2901/seca-scanner/internal/domain/job"
	domainReport "github.com/khanhnv2901/seca-scanner/internal/domain/report"
	"github.com/khanhnv2901/seca-scanner/internal/domain/target"
	"github.com/khanhnv2901/seca-scanner/internal/report"
)

// GetJob returns a job by id.
func (s *Service) GetJob(ctx context.Context, id string) (*job.Job, error) {
	return s.jobs.FindByID(ctx, id)
}

// ListJobs returns jobs newest first.
func (s *Service) ListJobs(ctx context.Context, filter job.ListFilter) ([]*job.Job, error) {
	return s.jobs.List(ctx, filter)
}

// GetTarget returns a target by id.
func (s *Service) GetTarget(ctx context.Context, id string) (*target.Target, error) {
	return s.targets.FindByID(ctx, id)
}

// ListTargets returns every registered target.
func (s *Service) ListTargets(ctx context.Context) ([]*target.Target, error) {
	return s.targets.List(ctx)
}

// Report reads the unified report of a job.
func (s *Service) Report(ctx context.Context, jobID string) (*domainReport.UnifiedReport, error) {
	return s.reports.Read(ctx, jobID)
}

// ProcessedReport reads a job's report and derives its presentation view.
func (s *Service) ProcessedReport(ctx context.Context, jobID string) (*report.ProcessedReport, error) {
	r, err := s.reports.Read(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return s.processor.Process(r), nil
}
