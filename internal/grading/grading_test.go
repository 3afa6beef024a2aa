package grading

import (
	"reflect"
	"testing"

	"github.com/khanhnv2901/seca-scanner/internal/domain/scan"
)

func grade(header string, g scan.Grade) scan.HeaderGrade {
	return scan.HeaderGrade{Header: header, Grade: g}
}

func TestComputeWorstCaseGradesAcrossPages(t *testing.T) {
	pages := []scan.PageResult{
		{URL: "https://a.example/one", HeaderGrades: []scan.HeaderGrade{
			grade("Strict-Transport-Security", scan.GradeMissing),
			grade("X-Frame-Options", scan.GradeGood),
		}},
		{URL: "https://a.example/two", HeaderGrades: []scan.HeaderGrade{
			grade("Strict-Transport-Security", scan.GradeGood),
			grade("X-Frame-Options", scan.GradeWeak),
		}},
	}

	counts := ComputeWorstCaseGrades(pages)
	want := Counts{Good: 0, Weak: 1, Missing: 1}
	if counts != want {
		t.Fatalf("got %+v, want %+v", counts, want)
	}
	if counts.Total() != 2 {
		t.Fatalf("expected counts to cover 2 distinct headers, got %d", counts.Total())
	}
}

func TestComputeWorstCaseGradesIsMonotonic(t *testing.T) {
	base := []scan.PageResult{{HeaderGrades: []scan.HeaderGrade{
		grade("Content-Security-Policy", scan.GradeWeak),
		grade("Referrer-Policy", scan.GradeGood),
	}}}
	before := ComputeWorstCaseGrades(base)

	tests := []struct {
		name string
		page scan.PageResult
	}{
		{"better page", scan.PageResult{HeaderGrades: []scan.HeaderGrade{grade("Content-Security-Policy", scan.GradeGood)}}},
		{"worse page", scan.PageResult{HeaderGrades: []scan.HeaderGrade{grade("Content-Security-Policy", scan.GradeMissing)}}},
		{"failed fetch", scan.PageResult{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			after := ComputeWorstCaseGrades(append(append([]scan.PageResult{}, base...), tt.page))
			if after.Good > before.Good {
				t.Fatalf("adding a page improved grades: before %+v after %+v", before, after)
			}
			if after.Total() != 2 {
				t.Fatalf("expected 2 headers, got %+v", after)
			}
		})
	}
}

func TestAggregateIssuesHSTSOnOnePage(t *testing.T) {
	hsts := "max-age=31536000; includeSubDomains"
	pages := []scan.PageResult{
		{URL: "https://a.example/", HeaderGrades: []scan.HeaderGrade{
			{Header: "Strict-Transport-Security", Grade: scan.GradeMissing, Reason: "Header not present"},
		}},
		{URL: "https://a.example/two", HeaderGrades: []scan.HeaderGrade{
			{Header: "Strict-Transport-Security", Value: &hsts, Grade: scan.GradeGood, Reason: "max-age=31536000 with includeSubDomains"},
		}},
	}

	issues := AggregateIssues(pages)
	want := []Issue{{Issue: "Missing Strict-Transport-Security header", Pages: []string{"https://a.example/"}}}
	if !reflect.DeepEqual(issues, want) {
		t.Fatalf("got %+v, want %+v", issues, want)
	}
	if got := ComputeWorstCaseGrades(pages); got.Missing != 1 || got.Good != 0 {
		t.Fatalf("unexpected counts %+v", got)
	}
}

func TestAggregateIssuesKeepsFirstSeenPageOrder(t *testing.T) {
	pages := []scan.PageResult{
		{URL: "p1", ContentIssues: []string{"A"}},
		{URL: "p2", ContentIssues: []string{"B", "A"}},
		{URL: "p3", ContentIssues: []string{"B", "B"}},
	}
	issues := AggregateIssues(pages)
	want := []Issue{
		{Issue: "A", Pages: []string{"p1", "p2"}},
		{Issue: "B", Pages: []string{"p2", "p3"}},
	}
	if !reflect.DeepEqual(issues, want) {
		t.Fatalf("got %+v, want %+v", issues, want)
	}
}

func TestSortIssuesIsStable(t *testing.T) {
	issues := []Issue{
		{Issue: "one-page-first", Pages: []string{"a"}},
		{Issue: "three-pages", Pages: []string{"a", "b", "c"}},
		{Issue: "one-page-second", Pages: []string{"b"}},
		{Issue: "two-pages", Pages: []string{"a", "b"}},
	}
	SortIssues(issues)

	var got []string
	for _, i := range issues {
		got = append(got, i.Issue)
	}
	want := []string{"three-pages", "two-pages", "one-page-first", "one-page-second"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestIsCritical(t *testing.T) {
	cases := map[string]bool{
		"Missing Strict-Transport-Security header":                                    true,
		"Missing Content-Security-Policy header":                                      true,
		"Mixed content detected (HTTPS page with HTTP resources)":                     true,
		"Potential XSS pattern detected":                                              true,
		"CORS credential reflection: server reflects origin with credentials allowed": true,
		"Missing HttpOnly flag on cookie: sid":                                        true,
		"Missing Secure flag on cookie: sid":                                          true,
		"Missing X-Frame-Options header":                                              false,
		"Weak Strict-Transport-Security: Missing includeSubDomains":                   false,
		"Server header disclosed: nginx":                                              false,
	}
	for finding, want := range cases {
		if got := IsCritical(finding, HTTPCriticalPatterns); got != want {
			t.Errorf("IsCritical(%q) = %v, want %v", finding, got, want)
		}
	}
}

func TestCategoryOf(t *testing.T) {
	cases := map[string]Category{
		"Missing HttpOnly flag on cookie: sid":                                  CategoryCookies,
		"Missing Secure flag on cookie: sid":                                    CategoryCookies,
		"Missing SameSite attribute on cookie: sid":                             CategoryCookies,
		"SameSite=None without Secure on cookie: sid":                           CategoryCookies,
		"Missing Subresource Integrity on external script: https://cdn/x.js":    CategoryScripts,
		"Known vulnerable library detected: jQuery 1.x (known vulnerabilities)": CategoryScripts,
		"Wildcard CORS origin: server allows requests from any origin":          CategoryCORS,
		"CORS origin reflection: server reflects arbitrary Origin header":       CategoryCORS,
		"Missing Strict-Transport-Security header":                              CategoryHeaders,
		"Potential XSS pattern detected":                                        CategoryHeaders,
	}
	for finding, want := range cases {
		if got := CategoryOf(finding); got != want {
			t.Errorf("CategoryOf(%q) = %s, want %s", finding, got, want)
		}
	}
	if CategoryScripts.Label() != "Script & Dependency Security" || CategoryTLS.Label() != "SSL/TLS" {
		t.Error("unexpected category labels")
	}
}

func TestSummarize(t *testing.T) {
	report := &scan.HTTPReport{
		PagesScanned: 1,
		Pages: []scan.PageResult{{URL: "https://a.example/", HeaderGrades: []scan.HeaderGrade{
			grade("Strict-Transport-Security", scan.GradeMissing),
			grade("X-Frame-Options", scan.GradeGood),
		}}},
		Findings: []string{"Missing Strict-Transport-Security header", "Server header disclosed: nginx"},
	}

	got := Summarize(report)
	want := scan.HTTPSummary{
		PagesScanned:     1,
		IssuesFound:      2,
		Good:             1,
		Missing:          1,
		CriticalFindings: []string{"Missing Strict-Transport-Security header"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestSummarizeTLS(t *testing.T) {
	report := &scan.TLSReport{
		Host:     "a.example",
		Protocol: "TLS 1.0",
		Checks: []scan.TLSCheck{
			{Name: "protocol", Status: scan.CheckFail},
			{Name: "cipher", Status: scan.CheckWarn},
			{Name: "expiry", Status: scan.CheckPass},
		},
		Findings: []string{"Deprecated TLS protocol: TLS 1.0"},
	}
	got := SummarizeTLS(report)
	if got.Passed != 1 || got.Warnings != 1 || got.Failed != 1 || got.IssuesFound != 1 {
		t.Fatalf("unexpected summary %+v", got)
	}
	if len(got.CriticalFindings) != 1 {
		t.Fatalf("expected deprecated protocol to be critical, got %v", got.CriticalFindings)
	}

	issues := AggregateTLSIssues(report)
	if len(issues) != 1 || issues[0].Pages[0] != "a.example" {
		t.Fatalf("unexpected tls issues %+v", issues)
	}
}
