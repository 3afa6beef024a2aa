package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
)

// WriteMarkdown renders the processed report as GitHub-flavoured Markdown.
func WriteMarkdown(w io.Writer, p *ProcessedReport) error {
	md := markdown.NewMarkdown(w)

	md.H1("Security Scan Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Target", "`" + p.TargetURL + "`"},
			{"Job", "`" + p.JobID + "`"},
			{"Date", p.FormattedDate},
			{"Pages Scanned", strconv.Itoa(p.TotalPages)},
			{"Technologies", techStackLabel(technologyNames(p.Technologies))},
		},
	})
	md.PlainText("")

	writeMarkdownAlert(md, p)

	if len(p.RedirectChain) > 1 {
		md.H2("Redirect Chain")
		md.PlainText("")
		md.OrderedList(p.RedirectChain...)
		md.PlainText("")
	}

	if p.TotalPages > 0 {
		md.H2("Security Headers")
		md.PlainText("")
		md.Table(markdown.TableSet{
			Header: []string{"Good", "Weak", "Missing"},
			Rows: [][]string{{
				strconv.Itoa(p.HeaderGradeSummary.Good),
				strconv.Itoa(p.HeaderGradeSummary.Weak),
				strconv.Itoa(p.HeaderGradeSummary.Missing),
			}},
		})
		md.PlainText("")
	}

	writeMarkdownIssues(md, "Header & Content Issues", p.Issues, p.IsMultiPage)
	writeMarkdownIssues(md, "Cookie Issues", p.CookieIssues, p.IsMultiPage)
	writeMarkdownIssues(md, "Script Issues", p.ScriptIssues, p.IsMultiPage)
	writeMarkdownIssues(md, "CORS Issues", p.CORSIssues, p.IsMultiPage)

	if p.TLS != nil {
		md.H2("SSL/TLS")
		md.PlainText("")
		rows := [][]string{
			{"Host", p.TLS.Host + ":" + p.TLS.Port},
			{"Protocol", dash(p.TLS.Protocol)},
			{"Cipher Suite", dash(p.TLS.CipherSuite)},
		}
		if c := p.TLS.Certificate; c != nil {
			rows = append(rows,
				[]string{"Subject", c.Subject},
				[]string{"Issuer", c.Issuer},
				[]string{"Expires", c.NotAfter.Format(DateLayout) + " (" + strconv.Itoa(c.DaysRemaining) + " days)"},
			)
		}
		md.Table(markdown.TableSet{Header: []string{"Property", "Value"}, Rows: rows})
		md.PlainText("")

		checks := make([][]string, 0, len(p.TLS.Checks))
		for _, c := range p.TLS.Checks {
			checks = append(checks, []string{c.Name, strings.ToUpper(string(c.Status)), c.Detail})
		}
		md.Table(markdown.TableSet{Header: []string{"Check", "Status", "Detail"}, Rows: checks})
		md.PlainText("")
		writeMarkdownIssues(md, "TLS Issues", p.TLS.Issues, false)
	}

	if len(p.PrintChecklist) > 0 {
		md.H2("Remediation Checklist")
		md.PlainText("")
		for _, section := range p.PrintChecklist {
			md.H3(section.Label)
			md.PlainText("")
			for _, item := range section.Items {
				md.PlainText("- [ ] **" + item.Issue + "**")
				if item.GenericFix != "" {
					md.PlainText("  " + item.GenericFix)
				}
				for _, fix := range item.FrameworkFixes {
					md.PlainText("  - " + fix.Framework + ": `" + fix.Fix + "`")
				}
			}
			md.PlainText("")
		}
	}

	if p.AIPrompt != nil {
		md.H2("AI Remediation Prompt")
		md.PlainText("")
		md.CodeBlocks(markdown.SyntaxHighlightText, p.AIPrompt.PromptText)
		md.PlainText("")
	}

	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by seca-scanner*")

	return md.Build()
}

func writeMarkdownAlert(md *markdown.Markdown, p *ProcessedReport) {
	switch {
	case len(p.CriticalFindings) > 0:
		md.Cautionf("%d critical finding(s) require immediate attention.", len(p.CriticalFindings))
	case p.AIPrompt != nil:
		md.Note("Issues found, none of them critical.")
	default:
		md.Tip("No security issues detected.")
	}
	md.PlainText("")
}

func writeMarkdownIssues(md *markdown.Markdown, title string, issues []AggregatedIssue, multiPage bool) {
	if len(issues) == 0 {
		return
	}
	md.H2(title)
	md.PlainText("")

	header := []string{"Issue", "Critical"}
	if multiPage {
		header = append(header, "Pages")
	}
	rows := make([][]string, 0, len(issues))
	for _, issue := range issues {
		critical := ""
		if issue.IsCritical {
			critical = "yes"
		}
		row := []string{issue.Issue, critical}
		if multiPage {
			row = append(row, strconv.Itoa(len(issue.Pages)))
		}
		rows = append(rows, row)
	}
	md.Table(markdown.TableSet{Header: header, Rows: rows})
	md.PlainText("")

	for _, issue := range issues {
		if issue.Explanation != nil && issue.Explanation.Risk != "" {
			md.Details(issue.Issue, issue.Explanation.Risk)
		}
	}
	md.PlainText("")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
