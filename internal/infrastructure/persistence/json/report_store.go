package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/khanhnv2901/seca-scanner/internal/domain/report"
	"github.com/khanhnv2901/seca-scanner/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/seca-scanner/internal/shared/errors"
	"github.com/khanhnv2901/seca-scanner/internal/shared/security"
)

// ReportFileName is the unified report stored under each job directory.
const ReportFileName = "report.json"

// ReportStore implements report.Repository as <dir>/<jobId>/report.json.
type ReportStore struct {
	dir string
}

var _ report.Repository = (*ReportStore)(nil)

// NewReportStore creates the reports directory if needed.
func NewReportStore(dir string) (*ReportStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("reports directory cannot be empty")
	}
	if err := os.MkdirAll(dir, constants.DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}
	return &ReportStore{dir: dir}, nil
}

// Dir returns the root reports directory.
func (s *ReportStore) Dir() string {
	return s.dir
}

// Write creates report.json exclusively, so a job's report is written once.
func (s *ReportStore) Write(ctx context.Context, r *report.UnifiedReport) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", sharedErrors.ErrSerializationFailed, err)
	}
	path, err := s.prepare(r.JobID, ReportFileName)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, constants.DefaultFilePerm)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", sharedErrors.ErrReportExists, r.JobID)
		}
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return f.Close()
}

func (s *ReportStore) Read(ctx context.Context, jobID string) (*report.UnifiedReport, error) {
	path, err := security.ResolveJobFile(s.dir, jobID, ReportFileName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sharedErrors.ErrReportNotFound, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", sharedErrors.ErrReportNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}

	var r report.UnifiedReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", sharedErrors.ErrDeserializationFailed, err)
	}
	return &r, nil
}

// WriteArtifact stores a derived file next to report.json, replacing any
// previous version.
func (s *ReportStore) WriteArtifact(ctx context.Context, jobID, name string, data []byte) error {
	if name == ReportFileName || name != filepath.Base(name) {
		return fmt.Errorf("%w: artifact name %q", sharedErrors.ErrValidation, name)
	}
	path, err := s.prepare(jobID, name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, constants.DefaultFilePerm); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func (s *ReportStore) prepare(jobID, name string) (string, error) {
	path, err := security.ResolveJobFile(s.dir, jobID, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), constants.DefaultDirPerm); err != nil {
		return "", fmt.Errorf("failed to create job directory: %w", err)
	}
	return path, nil
}
