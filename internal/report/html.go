package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"

	domainReport "github.com/khanhnv2901/seca-scanner/internal/domain/report"
)

const htmlTemplatePath = "templates/report.html"

//go:embed templates/report.html
var templateFS embed.FS

type issueSection struct {
	Title     template.HTML
	Issues    []AggregatedIssue
	MultiPage bool
}

var (
	htmlTemplateFuncs = template.FuncMap{
		"techLabel": func(techs []domainReport.Technology) string {
			return techStackLabel(technologyNames(techs))
		},
		"section": func(title string, issues []AggregatedIssue, multiPage bool) issueSection {
			// Titles are literals in the template itself.
			return issueSection{Title: template.HTML(title), Issues: issues, MultiPage: multiPage}
		},
	}

	htmlReportTemplate = template.Must(
		template.New("report.html").Funcs(htmlTemplateFuncs).ParseFS(templateFS, htmlTemplatePath),
	)
)

// WriteHTML renders the processed report as a standalone HTML page.
func WriteHTML(w io.Writer, p *ProcessedReport) error {
	var buf bytes.Buffer
	if err := htmlReportTemplate.Execute(&buf, p); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// RenderHTML is WriteHTML into a byte slice.
func RenderHTML(p *ProcessedReport) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteHTML(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
