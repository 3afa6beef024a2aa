// Package report assembles the unified report of a job and derives every
// presentation of it: the processed view, remediation prompts, checklists,
// Markdown, HTML and PDF.
package report

import (
	"time"

	domainReport "github.com/khanhnv2901/seca-scanner/internal/domain/report"
	"github.com/khanhnv2901/seca-scanner/internal/domain/scan"
	"github.com/khanhnv2901/seca-scanner/internal/grading"
	"github.com/khanhnv2901/seca-scanner/internal/techdetect"
)

// Input carries the results of the scan types a job executed. A nil result
// means the type did not run.
type Input struct {
	JobID     string
	TargetURL string
	Timestamp time.Time
	HTTP      *scan.HTTPReport
	TLS       *scan.TLSReport
}

// Assemble builds the unified report. Scan types are listed in execution
// order and critical findings are deduplicated across types.
func Assemble(in Input) *domainReport.UnifiedReport {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	r := &domainReport.UnifiedReport{
		Version:              domainReport.SchemaVersion,
		JobID:                in.JobID,
		TargetURL:            in.TargetURL,
		ScanTypes:            make([]scan.Type, 0, 2),
		Timestamp:            ts,
		DetectedTechnologies: make([]domainReport.Technology, 0),
	}

	var critical []string
	if in.HTTP != nil {
		summary := grading.Summarize(in.HTTP)
		r.ScanTypes = append(r.ScanTypes, scan.TypeHTTP)
		r.Scans.HTTP = in.HTTP
		r.Summary.HTTP = &summary
		critical = append(critical, summary.CriticalFindings...)
		r.DetectedTechnologies = techdetect.Detect(techdetect.InputFromHTTP(in.HTTP))
	}
	if in.TLS != nil {
		summary := grading.SummarizeTLS(in.TLS)
		r.ScanTypes = append(r.ScanTypes, scan.TypeTLS)
		r.Scans.TLS = in.TLS
		r.Summary.TLS = &summary
		critical = append(critical, summary.CriticalFindings...)
	}
	r.CriticalFindings = dedupe(critical)
	return r
}

func dedupe(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
