// Package report renders a single diagnosis record as a PDF.
package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"

	domain "github.com/bryanwahyu/leaflens/internal/domain/plants"
)

const fontFamily = "Helvetica"

var _ domain.ReportRenderer = (*PDFRenderer)(nil)

// PDFRenderer lays out an A4 report with the photo, diagnosis and
// treatment plan. Core fonts only cover cp1252, so text runs through a
// translator.
type PDFRenderer struct {
	Title string
}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{Title: "LeafLens Plant Health Report"}
}

func (r *PDFRenderer) Render(p domain.Plant) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(14, 14, 14)
	pdf.SetAutoPageBreak(true, 14)
	pdf.SetTitle(r.Title, false)
	pdf.SetCreationDate(p.Date)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont(fontFamily, "B", 16)
	pdf.CellFormat(0, 9, tr(r.Title), "", 1, "L", false, 0, "")
	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(0, 6, "Record: "+tr(string(p.ID)), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Date: "+p.Date.UTC().Format(time.RFC1123), "", 1, "L", false, 0, "")
	pdf.Ln(3)

	if imgType, data, ok := decodeImage(p.Image); ok {
		opts := gofpdf.ImageOptions{ImageType: imgType, ReadDpi: true}
		info := pdf.RegisterImageOptionsReader("photo", opts, bytes.NewReader(data))
		if pdf.Ok() && info != nil {
			pdf.ImageOptions("photo", pdf.GetX(), pdf.GetY(), 60, 0, true, opts, 0, "")
			pdf.Ln(3)
		} else {
			// an unreadable photo should not cost the whole report
			pdf.ClearError()
		}
	}

	section(pdf, "Plant")
	field(pdf, tr, "Name", p.DisplayName())
	field(pdf, tr, "Species", p.Species)
	field(pdf, tr, "Health", string(p.PlantHealth))

	section(pdf, "Diagnosis")
	field(pdf, tr, "Finding", p.Diagnosis)
	field(pdf, tr, "Severity", string(p.Severity))
	field(pdf, tr, "Confidence", fmt.Sprintf("%.0f%%", p.Confidence))

	section(pdf, "Treatment plan")
	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(30, 30, 30)
	if len(p.Treatments) == 0 {
		pdf.MultiCell(0, 5, "(none)", "", "L", false)
	}
	for i, t := range p.Treatments {
		pdf.MultiCell(0, 5, fmt.Sprintf("%d. %s", i+1, tr(t)), "", "L", false)
	}

	if strings.TrimSpace(p.Notes) != "" {
		section(pdf, "Notes")
		pdf.SetFont(fontFamily, "", 10)
		pdf.MultiCell(0, 5, tr(p.Notes), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render report %s: %w", p.ID, err)
	}
	return buf.Bytes(), nil
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.Ln(2)
	pdf.SetFont(fontFamily, "B", 12)
	pdf.SetTextColor(20, 90, 40)
	pdf.CellFormat(0, 7, title, "B", 1, "L", false, 0, "")
	pdf.Ln(1)
}

func field(pdf *gofpdf.Fpdf, tr func(string) string, label, value string) {
	pdf.SetFont(fontFamily, "B", 10)
	pdf.SetTextColor(30, 30, 30)
	pdf.CellFormat(30, 5, label+":", "", 0, "L", false, 0, "")
	pdf.SetFont(fontFamily, "", 10)
	pdf.MultiCell(0, 5, tr(value), "", "L", false)
}

// decodeImage extracts a png or jpeg payload from a data URI.
func decodeImage(uri string) (string, []byte, bool) {
	if !domain.IsImageDataURI(uri) {
		return "", nil, false
	}
	head, payload, ok := strings.Cut(uri, ",")
	if !ok || !strings.HasSuffix(head, ";base64") {
		return "", nil, false
	}
	var imgType string
	switch {
	case strings.HasPrefix(head, "data:image/png"):
		imgType = "PNG"
	case strings.HasPrefix(head, "data:image/jpeg"), strings.HasPrefix(head, "data:image/jpg"):
		imgType = "JPG"
	default:
		return "", nil, false
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(data) == 0 {
		return "", nil, false
	}
	return imgType, data, true
}
