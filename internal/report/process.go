package report

import (
	"fmt"
	"strings"
	"time"

	domainReport "github.com/khanhnv2901/seca-scanner/internal/domain/report"
	"github.com/khanhnv2901/seca-scanner/internal/domain/scan"
	"github.com/khanhnv2901/seca-scanner/internal/grading"
	"github.com/khanhnv2901/seca-scanner/internal/remediation"
)

// DateLayout renders report dates for people.
const DateLayout = "January 2, 2006"

// FrameworkFix is a technology-specific fix for an issue.
type FrameworkFix struct {
	Framework string `json:"framework"`
	Slug      string `json:"slug"`
	Fix       string `json:"fix"`
}

// AggregatedIssue is a finding with the pages it was seen on and its
// remediation guidance.
type AggregatedIssue struct {
	Issue             string             `json:"issue"`
	Pages             []string           `json:"pages"`
	IsCritical        bool               `json:"isCritical"`
	ExplanationKey    string             `json:"explanationKey"`
	Explanation       *remediation.Entry `json:"explanation,omitempty"`
	MatchedFrameworks []FrameworkFix     `json:"matchedFrameworks"`
}

// GroupedScriptIssue folds script findings of one type together.
type GroupedScriptIssue struct {
	IssueType         string             `json:"issueType"`
	Scripts           []string           `json:"scripts"`
	IsCritical        bool               `json:"isCritical"`
	ExplanationKey    string             `json:"explanationKey"`
	Explanation       *remediation.Entry `json:"explanation,omitempty"`
	MatchedFrameworks []FrameworkFix     `json:"matchedFrameworks"`
}

// AIPrompt is remediation prompt text for an LLM agent.
type AIPrompt struct {
	PromptText     string   `json:"promptText"`
	TechStackLabel string   `json:"techStackLabel"`
	Findings       []string `json:"findings"`
}

// ChecklistItem is one line of the printable checklist.
type ChecklistItem struct {
	Issue          string         `json:"issue"`
	GenericFix     string         `json:"genericFix"`
	FrameworkFixes []FrameworkFix `json:"frameworkFixes"`
}

// ChecklistSection groups checklist items under a heading.
type ChecklistSection struct {
	Label string          `json:"label"`
	Items []ChecklistItem `json:"items"`
}

type CookieSummary struct {
	TotalCookies    int `json:"totalCookies"`
	InsecureCookies int `json:"insecureCookies"`
}

type ScriptSummary struct {
	ExternalScripts     int `json:"externalScripts"`
	MissingSRI          int `json:"missingSri"`
	VulnerableLibraries int `json:"vulnerableLibraries"`
}

type CORSSummary struct {
	PagesTested int `json:"pagesTested"`
	IssuesFound int `json:"issuesFound"`
}

// ScannedPage is the listing row of one crawled page.
type ScannedPage struct {
	URL         string  `json:"url"`
	StatusCode  int     `json:"statusCode"`
	ContentType *string `json:"contentType"`
}

// TLSView is the processed TLS section.
type TLSView struct {
	Host         string                `json:"host"`
	Port         string                `json:"port"`
	Protocol     string                `json:"protocol"`
	CipherSuite  string                `json:"cipherSuite"`
	Certificate  *scan.CertificateInfo `json:"certificate,omitempty"`
	Checks       []scan.TLSCheck       `json:"checks"`
	CheckSummary scan.TLSSummary       `json:"checkSummary"`
	Issues       []AggregatedIssue     `json:"issues"`
}

// ProcessedReport is the presentation-ready view of a unified report.
type ProcessedReport struct {
	JobID               string                         `json:"jobId"`
	TargetURL           string                         `json:"targetUrl"`
	Timestamp           string                         `json:"timestamp"`
	FormattedDate       string                         `json:"formattedDate"`
	IsMultiPage         bool                           `json:"isMultiPage"`
	TotalPages          int                            `json:"totalPages"`
	RedirectChain       []string                       `json:"redirectChain"`
	HeaderGradeSummary  grading.Counts                 `json:"headerGradeSummary"`
	Issues              []AggregatedIssue              `json:"issues"`
	CookieIssues        []AggregatedIssue              `json:"cookieIssues"`
	ScriptIssues        []AggregatedIssue              `json:"scriptIssues"`
	GroupedScriptIssues []GroupedScriptIssue           `json:"groupedScriptIssues"`
	CORSIssues          []AggregatedIssue              `json:"corsIssues"`
	CookieSummary       CookieSummary                  `json:"cookieSummary"`
	ScriptSummary       ScriptSummary                  `json:"scriptSummary"`
	CORSSummary         CORSSummary                    `json:"corsSummary"`
	Technologies        []domainReport.Technology      `json:"detectedTechnologies"`
	MatchedFrameworks   []remediation.MatchedFramework `json:"matchedFrameworks"`
	CriticalFindings    []string                       `json:"criticalFindings"`
	AIPrompt            *AIPrompt                      `json:"aiPrompt"`
	ScannedPages        []ScannedPage                  `json:"scannedPages"`
	PrintChecklist      []ChecklistSection             `json:"printChecklist"`
	TLS                 *TLSView                       `json:"tls"`
}

// Processor derives presentations using a remediation catalog.
type Processor struct {
	catalog *remediation.Catalog
}

// NewProcessor returns a processor. A nil catalog selects the embedded one.
func NewProcessor(catalog *remediation.Catalog) *Processor {
	if catalog == nil {
		catalog = remediation.Default()
	}
	return &Processor{catalog: catalog}
}

// Process builds the full processed view of r.
func (p *Processor) Process(r *domainReport.UnifiedReport) *ProcessedReport {
	matched := p.catalog.MatchTechnologies(r.DetectedTechnologies)

	out := &ProcessedReport{
		JobID:              r.JobID,
		TargetURL:          r.TargetURL,
		Timestamp:          r.Timestamp.UTC().Format(time.RFC3339),
		FormattedDate:      r.Timestamp.Format(DateLayout),
		RedirectChain:      []string{},
		Technologies:       r.DetectedTechnologies,
		MatchedFrameworks:  matched,
		CriticalFindings:   r.CriticalFindings,
		ScannedPages:       []ScannedPage{},
		Issues:             []AggregatedIssue{},
		CookieIssues:       []AggregatedIssue{},
		ScriptIssues:       []AggregatedIssue{},
		CORSIssues:         []AggregatedIssue{},
		HeaderGradeSummary: grading.Counts{},
	}

	if h := r.Scans.HTTP; h != nil {
		out.TotalPages = len(h.Pages)
		out.IsMultiPage = out.TotalPages > 1
		if h.RedirectChain != nil {
			out.RedirectChain = h.RedirectChain
		}
		out.HeaderGradeSummary = grading.ComputeWorstCaseGrades(h.Pages)

		all := p.ClassifyAndSort(grading.AggregateIssues(h.Pages), matched, grading.HTTPCriticalPatterns)
		for _, issue := range all {
			switch grading.CategoryOf(issue.Issue) {
			case grading.CategoryCookies:
				out.CookieIssues = append(out.CookieIssues, issue)
			case grading.CategoryScripts:
				out.ScriptIssues = append(out.ScriptIssues, issue)
			case grading.CategoryCORS:
				out.CORSIssues = append(out.CORSIssues, issue)
			default:
				out.Issues = append(out.Issues, issue)
			}
		}

		out.CookieSummary, out.ScriptSummary, out.CORSSummary = pageSummaries(h.Pages)
		for _, page := range h.Pages {
			out.ScannedPages = append(out.ScannedPages, ScannedPage{URL: page.URL, StatusCode: page.StatusCode, ContentType: page.ContentType})
		}
	}
	out.GroupedScriptIssues = p.GroupScriptIssues(out.ScriptIssues, matched)

	if t := r.Scans.TLS; t != nil {
		out.TLS = &TLSView{
			Host:         t.Host,
			Port:         t.Port,
			Protocol:     t.Protocol,
			CipherSuite:  t.CipherSuite,
			Certificate:  t.Certificate,
			Checks:       t.Checks,
			CheckSummary: grading.SummarizeTLS(t),
			Issues:       p.ClassifyAndSort(grading.AggregateTLSIssues(t), matched, grading.TLSCriticalPatterns),
		}
	}

	out.AIPrompt = Prompt(r, true)

	var tlsIssues []AggregatedIssue
	if out.TLS != nil {
		tlsIssues = out.TLS.Issues
	}
	out.PrintChecklist = BuildPrintChecklist(map[grading.Category][]AggregatedIssue{
		grading.CategoryHeaders: out.Issues,
		grading.CategoryTLS:     tlsIssues,
		grading.CategoryCookies: out.CookieIssues,
		grading.CategoryScripts: out.ScriptIssues,
		grading.CategoryCORS:    out.CORSIssues,
	})
	return out
}

// ClassifyAndSort annotates aggregated issues and orders them by page count,
// most first.
func (p *Processor) ClassifyAndSort(issues []grading.Issue, matched []remediation.MatchedFramework, patterns []string) []AggregatedIssue {
	sorted := append([]grading.Issue(nil), issues...)
	grading.SortIssues(sorted)

	out := make([]AggregatedIssue, 0, len(sorted))
	for _, issue := range sorted {
		key := remediation.ExplanationKey(issue.Issue)
		entry, _ := p.catalog.Find(key)
		out = append(out, AggregatedIssue{
			Issue:             issue.Issue,
			Pages:             issue.Pages,
			IsCritical:        grading.IsCritical(issue.Issue, patterns),
			ExplanationKey:    key,
			Explanation:       entry,
			MatchedFrameworks: frameworkFixes(entry, matched),
		})
	}
	return out
}

// GroupScriptIssues groups script findings by the text before the first
// ": ", collecting what follows as the affected script.
func (p *Processor) GroupScriptIssues(issues []AggregatedIssue, matched []remediation.MatchedFramework) []GroupedScriptIssue {
	out := make([]GroupedScriptIssue, 0)
	index := make(map[string]int)
	for _, issue := range issues {
		issueType, detail, _ := strings.Cut(issue.Issue, ": ")

		i, ok := index[issueType]
		if !ok {
			key := remediation.ExplanationKey(issueType)
			entry, _ := p.catalog.Find(key)
			i = len(out)
			index[issueType] = i
			out = append(out, GroupedScriptIssue{
				IssueType:         issueType,
				Scripts:           []string{},
				IsCritical:        issue.IsCritical,
				ExplanationKey:    key,
				Explanation:       entry,
				MatchedFrameworks: frameworkFixes(entry, matched),
			})
		}
		if detail != "" {
			out[i].Scripts = append(out[i].Scripts, detail)
		}
	}
	return out
}

func frameworkFixes(entry *remediation.Entry, matched []remediation.MatchedFramework) []FrameworkFix {
	out := make([]FrameworkFix, 0)
	if entry == nil {
		return out
	}
	for _, m := range matched {
		if fix, ok := entry.FrameworkFix(m.Name); ok {
			out = append(out, FrameworkFix{Framework: m.Name, Slug: m.Slug, Fix: fix})
		}
	}
	return out
}

func pageSummaries(pages []scan.PageResult) (CookieSummary, ScriptSummary, CORSSummary) {
	var (
		cookies CookieSummary
		scripts ScriptSummary
		cors    CORSSummary
	)
	for _, page := range pages {
		cookies.TotalCookies += page.TotalCookies
		cookies.InsecureCookies += len(page.CookieIssues)

		scripts.ExternalScripts += page.TotalExternalScripts
		for _, s := range page.ScriptIssues {
			if !s.HasSRI {
				scripts.MissingSRI++
			}
			if s.LibraryMatch != "" {
				scripts.VulnerableLibraries++
			}
		}

		if page.CORSChecked {
			cors.PagesTested++
		}
		cors.IssuesFound += len(page.CORSIssues)
	}
	return cookies, scripts, cors
}

func technologyNames(techs []domainReport.Technology) []string {
	names := make([]string, 0, len(techs))
	for _, t := range techs {
		names = append(names, t.Name)
	}
	return names
}

func techStackLabel(techNames []string) string {
	if len(techNames) == 0 {
		return "Unknown"
	}
	return strings.Join(techNames, ", ")
}

const promptPreamble = "You are a security remediation agent. A security scan was run on %s and found the issues listed below. The detected technology stack is: %s.\n\n" +
	"For each issue, provide the exact configuration change or code fix needed for this technology stack, how to verify the fix worked, and any caveats or side effects.\n\n" +
	"Issues to fix:\n"

// BuildAIPrompt numbers findings from 1 under the remediation preamble. It
// returns nil when there are no findings.
func BuildAIPrompt(targetURL string, techNames, findings []string) *AIPrompt {
	if len(findings) == 0 {
		return nil
	}
	label := techStackLabel(techNames)

	lines := make([]string, len(findings))
	for i, f := range findings {
		lines[i] = fmt.Sprintf("%d. %s", i+1, f)
	}
	return &AIPrompt{
		PromptText:     fmt.Sprintf(promptPreamble, targetURL, label) + strings.Join(lines, "\n"),
		TechStackLabel: label,
		Findings:       append([]string(nil), findings...),
	}
}

// BuildGroupedAIPrompt is BuildAIPrompt with findings split into labelled
// sections. Numbering continues across sections.
func BuildGroupedAIPrompt(targetURL string, techNames []string, classified map[grading.Category][]string) *AIPrompt {
	var (
		all      []string
		sections []string
		counter  = 1
	)
	for _, category := range grading.PromptOrder {
		findings := classified[category]
		if len(findings) == 0 {
			continue
		}
		lines := make([]string, len(findings))
		for i, f := range findings {
			lines[i] = fmt.Sprintf("%d. %s", counter, f)
			counter++
		}
		sections = append(sections, category.Label()+":\n"+strings.Join(lines, "\n"))
		all = append(all, findings...)
	}
	if len(all) == 0 {
		return nil
	}

	label := techStackLabel(techNames)
	return &AIPrompt{
		PromptText:     fmt.Sprintf(promptPreamble, targetURL, label) + strings.Join(sections, "\n\n"),
		TechStackLabel: label,
		Findings:       all,
	}
}

// Prompt builds the remediation prompt of r, either grouped by section or as
// one flat list with HTTP findings first.
func Prompt(r *domainReport.UnifiedReport, grouped bool) *AIPrompt {
	techNames := technologyNames(r.DetectedTechnologies)
	if !grouped {
		return BuildAIPrompt(r.TargetURL, techNames, r.Findings())
	}
	var httpFindings, tlsFindings []string
	if r.Scans.HTTP != nil {
		httpFindings = r.Scans.HTTP.Findings
	}
	if r.Scans.TLS != nil {
		tlsFindings = r.Scans.TLS.Findings
	}
	return BuildGroupedAIPrompt(r.TargetURL, techNames, grading.ClassifyFindings(httpFindings, tlsFindings))
}

// BuildPrintChecklist lays issues out in checklist order, dropping empty
// sections.
func BuildPrintChecklist(issues map[grading.Category][]AggregatedIssue) []ChecklistSection {
	out := make([]ChecklistSection, 0)
	for _, category := range grading.ChecklistOrder {
		list := issues[category]
		if len(list) == 0 {
			continue
		}
		items := make([]ChecklistItem, 0, len(list))
		for _, issue := range list {
			generic := ""
			if issue.Explanation != nil {
				generic = issue.Explanation.Generic
			}
			items = append(items, ChecklistItem{
				Issue:          issue.Issue,
				GenericFix:     generic,
				FrameworkFixes: issue.MatchedFrameworks,
			})
		}
		out = append(out, ChecklistSection{Label: category.Label(), Items: items})
	}
	return out
}
