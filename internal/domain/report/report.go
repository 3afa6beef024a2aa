// Package report defines the unified, write-once scan report.
package report

import (
	"context"
	"time"

	"github.com/khanhnv2901/seca-scanner/internal/domain/scan"
)

// SchemaVersion is bumped whenever the persisted shape changes.
const SchemaVersion = 1

// Confidence of a technology detection.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Rank orders confidences so that higher wins on merge.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	}
	return 0
}

// Technology is one detected component of the target's stack.
type Technology struct {
	Name       string     `json:"name"`
	Confidence Confidence `json:"confidence"`
	Source     string     `json:"source"`
}

// Scans holds one typed result per executed scan type.
type Scans struct {
	HTTP *scan.HTTPReport `json:"http,omitempty"`
	TLS  *scan.TLSReport  `json:"tls,omitempty"`
}

// Summary holds one typed summary per executed scan type.
type Summary struct {
	HTTP *scan.HTTPSummary `json:"http,omitempty"`
	TLS  *scan.TLSSummary  `json:"tls,omitempty"`
}

// UnifiedReport is the persisted artifact every presentation derives from.
type UnifiedReport struct {
	Version              int          `json:"version"`
	JobID                string       `json:"jobId"`
	TargetURL            string       `json:"targetUrl"`
	ScanTypes            []scan.Type  `json:"scanTypes"`
	Timestamp            time.Time    `json:"timestamp"`
	Scans                Scans        `json:"scans"`
	Summary              Summary      `json:"summary"`
	DetectedTechnologies []Technology `json:"detectedTechnologies"`
	CriticalFindings     []string     `json:"criticalFindings"`
}

// Findings returns every finding across scan types, HTTP first.
func (r *UnifiedReport) Findings() []string {
	var out []string
	if r.Scans.HTTP != nil {
		out = append(out, r.Scans.HTTP.Findings...)
	}
	if r.Scans.TLS != nil {
		out = append(out, r.Scans.TLS.Findings...)
	}
	return out
}

// Repository persists unified reports. Writes are create-only.
type Repository interface {
	// Write fails with ErrReportExists if a report for the job was already written.
	Write(ctx context.Context, r *UnifiedReport) error
	// Read returns ErrReportNotFound when no report exists for the job.
	Read(ctx context.Context, jobID string) (*UnifiedReport, error)
	// WriteArtifact stores a derived presentation (for example report.html)
	// next to the report.
	WriteArtifact(ctx context.Context, jobID, name string, data []byte) error
}
