package reports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fdg312/adreport/internal/query"
	"github.com/jung-kurt/gofpdf"
)

// formatValue renders a row cell. Floats use the shortest form that
// round-trips.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// RenderCSV writes a header of columns followed by one line per row.
func RenderCSV(columns []string, rows []query.Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(columns); err != nil {
		return nil, err
	}

	line := make([]string, len(columns))
	for _, row := range rows {
		for i, c := range columns {
			line[i] = formatValue(row[c])
		}
		if err := w.Write(line); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const (
	pdfPageWidth = 277.0 // A4 landscape minus 10mm margins
	pdfRowHeight = 6.0
)

// RenderPDF draws a landscape table with a short description of the query.
func RenderPDF(plan *query.Plan, dateRange *query.DateRange, rows []query.Row, total int, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 12)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Ad Performance Report")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 10)
	describe := func(label, value string) {
		pdf.Cell(0, 5, tr(fmt.Sprintf("%s: %s", label, value)))
		pdf.Ln(5)
	}
	describe("Dimensions", joinOrDash(plan.Dimensions))
	describe("Metrics", joinOrDash(plan.Metrics))
	if dateRange != nil {
		describe("Date range", dateRange.Start+" to "+dateRange.End)
	}
	for _, f := range plan.Filters {
		describe("Filter "+f.Field, strings.Join(f.Values, ", "))
	}
	describe("Rows", fmt.Sprintf("%d of %d", len(rows), total))
	describe("Generated", generatedAt.UTC().Format(time.RFC3339))
	pdf.Ln(4)

	columns := plan.Columns()
	if len(columns) == 0 {
		return outputPDF(pdf)
	}
	width := pdfPageWidth / float64(len(columns))
	fontSize := 8.0
	if len(columns) > 8 {
		fontSize = 6
	}

	header := func() {
		pdf.SetFont("Helvetica", "B", fontSize)
		pdf.SetFillColor(230, 230, 230)
		for _, c := range columns {
			pdf.CellFormat(width, pdfRowHeight, fit(pdf, tr(c), width), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", fontSize)
	}
	header()

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, row := range rows {
		if pdf.GetY()+pdfRowHeight > pageHeight-bottom {
			pdf.AddPage()
			header()
		}
		for i, c := range columns {
			align := "L"
			if i >= len(plan.Dimensions) {
				align = "R"
			}
			pdf.CellFormat(width, pdfRowHeight, fit(pdf, tr(formatValue(row[c])), width), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	return outputPDF(pdf)
}

func outputPDF(pdf *gofpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// fit shortens s so it fits in a cell of the given width. s is already
// translated to a single-byte code page.
func fit(pdf *gofpdf.Fpdf, s string, width float64) string {
	room := width - 2
	if pdf.GetStringWidth(s) <= room {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > room {
		s = s[:len(s)-1]
	}
	return s + "..."
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
