package render

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	coreFamily = "Helvetica"
	fontFamily = "body"
	lineHeight = 6.0
)

// Renderer holds the static inputs shared by every document: the font and
// the draft watermark text.
type Renderer struct {
	font      []byte
	watermark string
}

// New loads the TTF font at fontPath when given. Without a font the core
// Helvetica face is used and non-Latin text is dropped, so only tests
// build a Renderer that way; Config.Validate requires RENDER_FONT_PATH.
func New(fontPath, draftWatermark string) (*Renderer, error) {
	r := &Renderer{watermark: draftWatermark}
	if fontPath != "" {
		b, err := os.ReadFile(fontPath)
		if err != nil {
			return nil, fmt.Errorf("read render font: %w", err)
		}
		r.font = b
	}
	return r, nil
}

// DraftWatermark is the text stamped on unofficial documents.
func (r *Renderer) DraftWatermark() string { return r.watermark }

type document struct {
	pdf    *fpdf.Fpdf
	tr     func(string) string
	family string
	bold   string
}

func (r *Renderer) newDocument(title, watermark string, at time.Time) *document {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetTitle(title, true)
	pdf.SetCreator("staffcore", true)
	pdf.SetCreationDate(at)
	pdf.SetModificationDate(at)
	// fonts and images are otherwise written in map order
	pdf.SetCatalogSort(true)

	d := &document{pdf: pdf, family: coreFamily, bold: "B"}
	if r.font != nil {
		pdf.AddUTF8FontFromBytes(fontFamily, "", r.font)
		d.family, d.bold = fontFamily, ""
		d.tr = func(s string) string { return s }
	} else {
		d.tr = pdf.UnicodeTranslatorFromDescriptor("")
	}

	if watermark != "" {
		pdf.SetHeaderFunc(func() {
			pdf.SetFont(d.family, d.bold, 60)
			pdf.SetTextColor(210, 210, 210)
			pdf.TransformBegin()
			pdf.TransformRotate(45, 105, 148)
			pdf.Text(55, 160, d.tr(watermark))
			pdf.TransformEnd()
		})
	}
	pdf.AddPage()
	d.heading(title)
	return d
}

func (d *document) heading(text string) {
	d.pdf.SetFont(d.family, d.bold, 18)
	d.pdf.SetTextColor(0, 0, 0)
	d.pdf.CellFormat(0, 12, d.tr(text), "", 1, "C", false, 0, "")
	d.pdf.Ln(4)
}

func (d *document) subheading(text string) {
	d.pdf.SetFont(d.family, d.bold, 12)
	d.pdf.CellFormat(0, 8, d.tr(text), "", 1, "L", false, 0, "")
}

func (d *document) paragraph(text string) {
	if text == "" {
		return
	}
	d.pdf.SetFont(d.family, "", 11)
	d.pdf.MultiCell(0, lineHeight, d.tr(text), "", "L", false)
	d.pdf.Ln(3)
}

func (d *document) rightAligned(text string) {
	d.pdf.SetFont(d.family, "", 10)
	d.pdf.CellFormat(0, lineHeight, d.tr(text), "", 1, "R", false, 0, "")
}

// item is one labelled row of the field table.
type item struct {
	label string
	text  string
}

// table draws each item as a shaded label cell over a bordered value box.
func (d *document) table(items []item) {
	d.pdf.SetFillColor(240, 240, 240)
	for _, it := range items {
		text := it.text
		if text == "" {
			text = "-"
		}
		d.pdf.SetFont(d.family, d.bold, 10)
		d.pdf.CellFormat(0, 7, d.tr(it.label), "1", 1, "L", true, 0, "")
		d.pdf.SetFont(d.family, "", 10)
		d.pdf.MultiCell(0, lineHeight, d.tr(text), "LRB", "L", false)
	}
	d.pdf.Ln(4)
}

func (d *document) bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}
