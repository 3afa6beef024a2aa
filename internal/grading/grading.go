// Package grading reduces per-page scan results into site-wide grades,
// aggregated issues and critical findings.
package grading

import (
	"sort"
	"strings"

	"github.com/khanhnv2901/seca-scanner/internal/domain/scan"
)

// HTTPCriticalPatterns mark an HTTP finding as critical when contained in it.
var HTTPCriticalPatterns = []string{
	"Missing Strict-Transport-Security",
	"Missing Content-Security-Policy",
	"Mixed content",
	"XSS",
	"CORS credential reflection",
	"Missing HttpOnly flag",
	"Missing Secure flag",
}

// TLSCriticalPatterns mark a TLS finding as critical when contained in it.
var TLSCriticalPatterns = []string{
	"Certificate expired",
	"Certificate hostname mismatch",
	"Deprecated TLS protocol",
}

// Counts buckets headers by their worst grade.
type Counts struct {
	Good    int `json:"good"`
	Weak    int `json:"weak"`
	Missing int `json:"missing"`
}

// Total is the number of distinct headers counted.
func (c Counts) Total() int {
	return c.Good + c.Weak + c.Missing
}

// Issue is one finding together with the pages exhibiting it, in order of
// first occurrence.
type Issue struct {
	Issue string   `json:"issue"`
	Pages []string `json:"pages"`
}

// ComputeWorstCaseGrades takes, for every header name seen on any page, the
// most severe grade across pages and counts the results. Headers are pooled
// by name even when pages apply different policies.
func ComputeWorstCaseGrades(pages []scan.PageResult) Counts {
	worst := make(map[string]scan.Grade)
	for _, page := range pages {
		for _, g := range page.HeaderGrades {
			current, ok := worst[g.Header]
			if !ok || g.Grade.Severity() > current.Severity() {
				worst[g.Header] = g.Grade
			}
		}
	}

	var counts Counts
	for _, g := range worst {
		switch g {
		case scan.GradeGood:
			counts.Good++
		case scan.GradeWeak:
			counts.Weak++
		default:
			counts.Missing++
		}
	}
	return counts
}

// AggregateIssues groups page findings by their literal text.
func AggregateIssues(pages []scan.PageResult) []Issue {
	index := make(map[string]int)
	issues := make([]Issue, 0)
	for _, page := range pages {
		seenOnPage := make(map[string]struct{})
		for _, finding := range page.Findings() {
			if _, dup := seenOnPage[finding]; dup {
				continue
			}
			seenOnPage[finding] = struct{}{}

			i, ok := index[finding]
			if !ok {
				index[finding] = len(issues)
				issues = append(issues, Issue{Issue: finding, Pages: []string{page.URL}})
				continue
			}
			issues[i].Pages = append(issues[i].Pages, page.URL)
		}
	}
	return issues
}

// AggregateTLSIssues attributes every TLS finding to the scanned host.
func AggregateTLSIssues(r *scan.TLSReport) []Issue {
	if r == nil {
		return nil
	}
	issues := make([]Issue, 0, len(r.Findings))
	for _, f := range r.Findings {
		issues = append(issues, Issue{Issue: f, Pages: []string{r.Host}})
	}
	return issues
}

// SortIssues orders issues by affected page count, most first. Ties keep
// their first-seen order.
func SortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		return len(issues[i].Pages) > len(issues[j].Pages)
	})
}

// IsCritical reports whether finding contains any of patterns.
func IsCritical(finding string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(finding, p) {
			return true
		}
	}
	return false
}

// CriticalFindings filters findings down to the critical ones, preserving order.
func CriticalFindings(findings, patterns []string) []string {
	out := make([]string, 0)
	for _, f := range findings {
		if IsCritical(f, patterns) {
			out = append(out, f)
		}
	}
	return out
}

// Summarize builds the compact HTTP summary stored on the job.
func Summarize(r *scan.HTTPReport) scan.HTTPSummary {
	counts := ComputeWorstCaseGrades(r.Pages)
	return scan.HTTPSummary{
		PagesScanned:     r.PagesScanned,
		IssuesFound:      len(r.Findings),
		Good:             counts.Good,
		Weak:             counts.Weak,
		Missing:          counts.Missing,
		CriticalFindings: CriticalFindings(r.Findings, HTTPCriticalPatterns),
	}
}

// SummarizeTLS builds the compact TLS summary stored on the job.
func SummarizeTLS(r *scan.TLSReport) scan.TLSSummary {
	s := scan.TLSSummary{
		Protocol:         r.Protocol,
		IssuesFound:      len(r.Findings),
		CriticalFindings: CriticalFindings(r.Findings, TLSCriticalPatterns),
	}
	for _, c := range r.Checks {
		switch c.Status {
		case scan.CheckPass:
			s.Passed++
		case scan.CheckWarn:
			s.Warnings++
		default:
			s.Failed++
		}
	}
	return s
}
