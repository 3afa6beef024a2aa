package report

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// RenderChecklistPDF lays the remediation checklist out as a printable A4 PDF.
func RenderChecklistPDF(p *ProcessedReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Remediation Checklist", true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "Remediation Checklist", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("Target: %s", p.TargetURL)), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Scanned: %s | Pages: %d", p.FormattedDate, p.TotalPages), "", 1, "C", false, 0, "")
	if len(p.Technologies) > 0 {
		pdf.CellFormat(0, 6, tr(fmt.Sprintf("Stack: %s", techStackLabel(technologyNames(p.Technologies)))), "", 1, "C", false, 0, "")
	}
	pdf.Ln(5)

	if len(p.PrintChecklist) == 0 {
		pdf.SetFont("Arial", "I", 11)
		pdf.CellFormat(0, 8, "No issues found.", "", 1, "", false, 0, "")
	}

	for _, section := range p.PrintChecklist {
		pdf.SetFont("Arial", "B", 13)
		pdf.CellFormat(0, 8, tr(section.Label), "B", 1, "", false, 0, "")
		pdf.Ln(2)

		for _, item := range section.Items {
			if pdf.GetY() > 260 {
				pdf.AddPage()
			}
			pdf.SetFont("Arial", "", 10)
			y := pdf.GetY()
			pdf.Rect(pdf.GetX(), y+1, 3.5, 3.5, "D")
			pdf.SetX(pdf.GetX() + 6)
			pdf.SetFont("Arial", "B", 10)
			pdf.MultiCell(0, 5, tr(item.Issue), "", "", false)

			if item.GenericFix != "" {
				pdf.SetX(16)
				pdf.SetFont("Arial", "", 9)
				pdf.MultiCell(0, 4.5, tr(item.GenericFix), "", "", false)
			}
			for _, fix := range item.FrameworkFixes {
				pdf.SetX(16)
				pdf.SetFont("Courier", "", 8)
				pdf.MultiCell(0, 4, tr(fmt.Sprintf("%s: %s", fix.Framework, fix.Fix)), "", "", false)
			}
			pdf.Ln(2)
		}
		pdf.Ln(3)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}
