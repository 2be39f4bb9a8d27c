package report

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"io"
	"log/slog"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/zombor/expense-report/internal/scanning"
)

// A4 portrait geometry in millimetres
const (
	pageWidth    = 210.0
	pageHeight   = 297.0
	margin       = 15.0
	bottomLimit  = pageHeight - margin
	contentWidth = pageWidth - 2*margin

	headerHeight   = 55.0
	rowHeight      = 12.0
	breakdownStep  = 7.0
	totalBandWidth = contentWidth

	attachmentTop = 25.0
)

// Decoder turns one attachment into page images
type Decoder func(data []byte, contentType string) ([]image.Image, error)

// SkippedAttachment records an attachment that could not be placed in the document
type SkippedAttachment struct {
	Label string `json:"label"`
	Error string `json:"error"`
}

// Document is a rendered report
type Document struct {
	ID              string
	Filename        string
	Total           int64
	Rows            int
	Breakdown       []CategoryTotal
	Pages           int
	AttachmentPages int
	Skipped         []SkippedAttachment

	data []byte
}

// Bytes returns the encoded PDF
func (d *Document) Bytes() []byte {
	return d.data
}

// WriteTo writes the encoded PDF to w
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(d.data)
	return int64(n), err
}

// PageCount returns the number of pages in the document
func (d *Document) PageCount() int {
	return d.Pages
}

// Renderer produces report PDFs
type Renderer struct {
	decode Decoder
}

// NewRenderer creates a Renderer that decodes attachments with the scanning package
func NewRenderer() *Renderer {
	return &Renderer{decode: scanning.DecodePages}
}

// NewRendererWithDecoder creates a Renderer with a custom attachment decoder for testing
func NewRendererWithDecoder(decode Decoder) *Renderer {
	return &Renderer{decode: decode}
}

// page wraps the fpdf document with the cursor and text translation used while laying out
type page struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
	y   float64
}

// Render lays out the cover page, the expense table and one page per attachment image.
// Attachments that fail to decode are skipped and reported in Document.Skipped.
func (r *Renderer) Render(ctx context.Context, in Input) (*Document, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetCreationDate(in.Header.GeneratedAt)
	pdf.SetModificationDate(in.Header.GeneratedAt)

	id := FormatID(in.Number)
	pdf.SetTitle("Expense Report "+id, true)
	pdf.SetAuthor(Transliterate(in.Header.ClaimantName), true)

	p := &page{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	doc := &Document{
		ID:        id,
		Filename:  Filename(in.Number, "pdf"),
		Total:     Total(in.Lines),
		Rows:      len(in.Lines),
		Breakdown: Breakdown(in.Lines),
	}

	pdf.AddPage()
	p.header(in.Header, id)
	p.table(in.Lines)
	p.breakdown(doc.Breakdown)
	p.grandTotal(doc.Total, in.Header.currency())
	p.footer(in.Header)

	if pdf.Err() {
		return nil, fmt.Errorf("rendering cover page: %w", pdf.Error())
	}

	for i, att := range in.Attachments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		label := att.Label
		if label == "" {
			label = fmt.Sprintf("attachment %d", i+1)
		}

		images, err := r.decode(att.Data, att.ContentType)
		if err != nil {
			slog.Warn("Skipping attachment", "report", id, "attachment", label, "error", err)
			doc.Skipped = append(doc.Skipped, SkippedAttachment{Label: label, Error: err.Error()})
			continue
		}

		for j, img := range images {
			name := fmt.Sprintf("att-%d-%d", i, j)
			if err := p.attachment(name, img, doc.AttachmentPages+1, id); err != nil {
				slog.Warn("Skipping attachment page", "report", id, "attachment", label, "page", j+1, "error", err)
				doc.Skipped = append(doc.Skipped, SkippedAttachment{Label: fmt.Sprintf("%s page %d", label, j+1), Error: err.Error()})
				continue
			}
			doc.AttachmentPages++
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("encoding PDF: %w", err)
	}
	doc.data = buf.Bytes()
	doc.Pages = pdf.PageCount()

	return doc, nil
}

// cell writes text inside a box starting at (x, y)
func (p *page) cell(x, y, w, h float64, text, align string) {
	p.pdf.SetXY(x, y)
	p.pdf.CellFormat(w, h, p.tr(text), "", 0, align, false, 0, "")
}

// fit shortens text until it fits into width
func (p *page) fit(text string, width float64) string {
	if p.pdf.GetStringWidth(p.tr(text)) <= width {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + "..."
		if p.pdf.GetStringWidth(p.tr(candidate)) <= width {
			return candidate
		}
	}
	return ""
}

// ensure starts a new page when a block of height h would cross the bottom margin
func (p *page) ensure(h float64) {
	if p.y+h > bottomLimit {
		p.pdf.AddPage()
		p.y = margin + 5
	}
}

func (p *page) header(c Header, id string) {
	pdf := p.pdf
	pdf.SetFillColor(220, 38, 38)
	pdf.Rect(0, 0, pageWidth, headerHeight, "F")
	pdf.SetTextColor(255, 255, 255)

	pdf.SetFont("Helvetica", "B", 20)
	p.cell(0, 10, pageWidth, 10, p.fit(displayText(c.programLabel()), contentWidth), "C")

	pdf.SetFont("Helvetica", "B", 14)
	p.cell(0, 22, pageWidth, 8, p.fit(displayText(c.Project), contentWidth), "C")

	pdf.SetFont("Helvetica", "", 10)
	if c.Destination != "" || c.Purpose != "" {
		line := fmt.Sprintf("DESTINATION: %s | PURPOSE: %s", displayText(c.Destination), displayText(c.Purpose))
		p.cell(0, 32, pageWidth, 6, p.fit(line, contentWidth), "C")
	}
	p.cell(0, 40, pageWidth, 6, fmt.Sprintf("DATE: %s | REPORT ID: %s", c.ReportDate, id), "C")

	pdf.SetTextColor(0, 0, 0)
	p.y = headerHeight + 10
	pdf.SetFont("Helvetica", "B", 14)
	p.cell(margin, p.y, contentWidth, 7, p.fit(displayText(c.ClaimantName), contentWidth), "L")
	p.y += 8
	if c.ClaimantEmail != "" {
		pdf.SetFont("Helvetica", "", 9)
		p.cell(margin, p.y, contentWidth, 5, p.fit(c.ClaimantEmail, contentWidth), "L")
		p.y += 6
	}
	p.y += 4
}

func (p *page) table(lines []Line) {
	pdf := p.pdf
	pdf.SetFillColor(220, 38, 38)
	pdf.Rect(margin, p.y, contentWidth, 8, "F")
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 9)
	p.cell(18, p.y, 30, 8, "DATE", "L")
	p.cell(50, p.y, 100, 8, "VENDOR & CATEGORY", "L")
	p.cell(150, p.y, 42, 8, "AMOUNT", "R")
	pdf.SetTextColor(0, 0, 0)
	p.y += 10

	for _, l := range lines {
		p.ensure(rowHeight)

		pdf.SetFont("Helvetica", "", 10)
		p.cell(18, p.y, 30, 5, l.Date, "L")

		pdf.SetFont("Helvetica", "B", 10)
		p.cell(50, p.y, 98, 5, p.fit(displayText(l.Merchant), 98), "L")

		pdf.SetFont("Helvetica", "", 10)
		p.cell(150, p.y, 42, 5, FormatAmount(l.Amount), "R")

		sub := categoryLabel(l.Category)
		if l.DocumentNumber != "" {
			sub += " | DOC " + displayText(l.DocumentNumber)
		}
		pdf.SetFont("Helvetica", "I", 8)
		p.cell(50, p.y+5, 98, 4, p.fit(sub, 98), "L")

		p.y += rowHeight
	}
}

func (p *page) breakdown(totals []CategoryTotal) {
	pdf := p.pdf
	height := float64(len(totals))*breakdownStep + 12
	p.y += 5
	p.ensure(height)

	pdf.SetFillColor(220, 38, 38)
	pdf.Rect(120, p.y, 75, height, "F")
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 9)
	p.cell(125, p.y+2, 65, 6, "CATEGORY BREAKDOWN", "L")

	pdf.SetFont("Helvetica", "", 9)
	y := p.y + 9
	for _, t := range totals {
		p.cell(125, y, 45, 6, p.fit(t.Category+":", 45), "L")
		p.cell(170, y, 20, 6, FormatAmount(t.Amount), "R")
		y += breakdownStep
	}
	pdf.SetTextColor(0, 0, 0)
	p.y += height
}

func (p *page) grandTotal(total int64, currency string) {
	pdf := p.pdf
	p.y += 5
	p.ensure(12)

	pdf.SetFillColor(220, 38, 38)
	pdf.Rect(margin, p.y, totalBandWidth, 12, "F")
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 12)
	p.cell(20, p.y+3, 90, 6, "GRAND TOTAL CLAIM", "L")
	p.cell(110, p.y+3, 80, 6, FormatAmount(total)+" "+currency, "R")
	pdf.SetTextColor(0, 0, 0)
	p.y += 12
}

func (p *page) footer(c Header) {
	pdf := p.pdf
	bank := bankLine(c)
	if bank != "" {
		p.y += 8
		p.ensure(6)
		pdf.SetFont("Helvetica", "", 9)
		p.cell(margin, p.y, contentWidth, 5, p.fit(bank, contentWidth), "L")
		p.y += 6
	}

	p.y += 8
	p.ensure(6)
	pdf.SetFont("Helvetica", "BI", 10)
	pdf.SetTextColor(180, 0, 0)
	stamp := "DIGITALLY GENERATED: " + c.GeneratedAt.Format("02/01/2006 15:04:05")
	p.cell(margin, p.y, contentWidth, 5, stamp, "L")
	pdf.SetTextColor(0, 0, 0)
	p.y += 6
}

func bankLine(c Header) string {
	var parts []string
	if c.BankName != "" {
		parts = append(parts, "BANK: "+displayText(c.BankName))
	}
	if c.IBAN != "" {
		parts = append(parts, "IBAN: "+displayText(c.IBAN))
	}
	if c.SWIFT != "" {
		parts = append(parts, "SWIFT: "+displayText(c.SWIFT))
	}
	if c.AccountNumber != "" {
		parts = append(parts, "ACCOUNT: "+displayText(c.AccountNumber))
	}
	return strings.Join(parts, " | ")
}

// attachment registers img and places it on a new page, scaled to fit the printable area
func (p *page) attachment(name string, img image.Image, n int, id string) error {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return fmt.Errorf("image has no pixels")
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: 85}); err != nil {
		return fmt.Errorf("encoding JPEG: %w", err)
	}

	opts := fpdf.ImageOptions{ImageType: "JPG"}
	p.pdf.RegisterImageOptionsReader(name, opts, &buf)
	if p.pdf.Err() {
		err := p.pdf.Error()
		p.pdf.ClearError()
		return fmt.Errorf("registering image: %w", err)
	}

	w, h := fitBox(float64(b.Dx()), float64(b.Dy()), contentWidth, bottomLimit-attachmentTop)
	x := margin + (contentWidth-w)/2

	p.pdf.AddPage()
	p.pdf.SetTextColor(220, 38, 38)
	p.pdf.SetFont("Helvetica", "B", 14)
	p.cell(margin, margin-5, contentWidth, 8, fmt.Sprintf("ATTACHMENT #%d - REPORT %s", n, id), "L")
	p.pdf.SetTextColor(0, 0, 0)
	p.pdf.ImageOptions(name, x, attachmentTop, w, h, false, opts, 0, "")
	return nil
}

// flatten draws img over a white background; JPEG has no alpha channel
func flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(canvas, canvas.Bounds(), img, b.Min, draw.Over)
	return canvas
}

// fitBox scales (w, h) uniformly to the largest size that fits inside (maxW, maxH)
func fitBox(w, h, maxW, maxH float64) (float64, float64) {
	scale := maxW / w
	if s := maxH / h; s < scale {
		scale = s
	}
	return w * scale, h * scale
}
