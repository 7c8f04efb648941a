// PDF exporter: lays an audit report out with gofpdf.
// Headings get sized fonts, list items get bullets and inline Markdown is
// flattened. Text goes through a cp1252 translator because the core fonts
// do not carry UTF-8.
package render

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/gaurav-prasanna/auditpipe/core"
)

// PDFExporter renders an article as a printable audit report.
type PDFExporter struct {
	siteName string
}

// NewPDFExporter creates a PDFExporter. siteName appears in the page header.
func NewPDFExporter(siteName string) *PDFExporter {
	return &PDFExporter{siteName: siteName}
}

var headingSizes = map[int]float64{1: 18, 2: 15, 3: 13, 4: 12}

// Render converts Markdown into PDF bytes.
func (r *PDFExporter) Render(markdown string, meta core.ExportMeta) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr(meta.Title), false)
	pdf.SetAutoPageBreak(true, 18)

	pdf.SetHeaderFunc(func() {
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 6, tr(r.siteName+" | Audit Report #AUD-"+core.AuditID(meta.Slug)), "B", 1, "R", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
		pdf.Ln(4)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-14)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	if meta.Title != "" {
		pdf.SetFont("Helvetica", "B", 20)
		pdf.MultiCell(0, 9, tr(meta.Title), "", "L", false)
		pdf.Ln(2)
	}

	var facts []string
	if meta.State != "" {
		facts = append(facts, "State: "+meta.State)
	}
	if meta.Category != "" {
		facts = append(facts, "Category: "+meta.Category)
	}
	if meta.UpdatedAt != "" {
		facts = append(facts, "Updated: "+meta.UpdatedAt)
	}
	facts = append(facts, "Source: "+meta.URL)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.SetTextColor(100, 100, 100)
	pdf.MultiCell(0, 5, tr(strings.Join(facts, "  |  ")), "", "L", false)
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(6)

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			pdf.Ln(3)
		case isRule(trimmed):
			pdf.Ln(2)
			w, _ := pdf.GetPageSize()
			left, _, right, _ := pdf.GetMargins()
			y := pdf.GetY()
			pdf.Line(left, y, w-right, y)
			pdf.Ln(3)
		default:
			if h, ok := parseHeading(trimmed); ok {
				writeHeading(pdf, tr(flattenInline(h.Text)), h.Level)
				continue
			}
			if item, ok := listItem(trimmed); ok {
				pdf.SetFont("Helvetica", "", 10)
				pdf.SetX(pdf.GetX() + 4)
				pdf.MultiCell(0, 5, tr("• "+flattenInline(item)), "", "L", false)
				continue
			}
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 5, tr(flattenInline(trimmed)), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("writing PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// Extension returns the file extension for PDF output.
func (r *PDFExporter) Extension() string {
	return ".pdf"
}

func writeHeading(pdf *gofpdf.Fpdf, text string, level int) {
	size, ok := headingSizes[level]
	if !ok {
		size = 11
	}
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", size)
	pdf.MultiCell(0, size*0.55, text, "", "L", false)
	pdf.Ln(2)
}

var orderedItemRe = regexp.MustCompile(`^\d+\.\s+`)

func listItem(line string) (string, bool) {
	for _, marker := range []string{"- ", "* ", "+ "} {
		if rest, ok := strings.CutPrefix(line, marker); ok {
			return rest, true
		}
	}
	if loc := orderedItemRe.FindStringIndex(line); loc != nil {
		return line, true
	}
	return "", false
}

func isRule(line string) bool {
	return line == "---" || line == "***" || line == "___"
}

var inlineCodeRe = regexp.MustCompile("`([^`]+)`")

// flattenInline strips inline Markdown for fonts without styling runs.
func flattenInline(text string) string {
	text = mdLinkRe.ReplaceAllString(text, "$1")
	text = mdEmphRe.ReplaceAllString(text, "$1")
	text = inlineCodeRe.ReplaceAllString(text, "$1")
	text = strings.ReplaceAll(text, "__", "")
	return strings.TrimSpace(text)
}
