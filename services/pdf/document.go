// Package pdfsvc renders the disciplinary office forms as PDF.
package pdfsvc

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/trezcool/podesk/core"
)

const (
	fontFamily = "Helvetica"
	lineH      = 6.0
	margin     = 15.0
)

// document wraps fpdf with the layout blocks shared by every form.
type document struct {
	pdf   *fpdf.Fpdf
	tr    func(string) string
	width float64 // printable width
}

func newDocument(title, creator string, created time.Time, size string) *document {
	pdf := fpdf.New("P", "mm", size, "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetTitle(title, true)
	pdf.SetCreator(creator, true)
	pdf.SetCreationDate(created)
	pdf.AliasNbPages("")

	pageW, _ := pdf.GetPageSize()
	d := &document{
		pdf:   pdf,
		tr:    pdf.UnicodeTranslatorFromDescriptor(""), // cp1252
		width: pageW - 2*margin,
	}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-margin + 3)
		pdf.SetFont(fontFamily, "I", 8)
		pdf.CellFormat(d.width*0.75, 4, d.tr(title+" | generated "+created.Format("2006-01-02 15:04 MST")), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 4, "Page "+strconv.Itoa(pdf.PageNo())+" of {nb}", "", 0, "R", false, 0, "")
	})
	pdf.AddPage()
	return d
}

func (d *document) header(school core.SchoolConfig, title string) {
	pdf := d.pdf
	pdf.SetFont(fontFamily, "", 9)
	for _, line := range []string{"Republic of the Philippines", "Department of Education", school.Region, school.Division} {
		if line != "" {
			pdf.CellFormat(0, 4.5, d.tr(line), "", 1, "C", false, 0, "")
		}
	}
	pdf.SetFont(fontFamily, "B", 12)
	pdf.CellFormat(0, 6, d.tr(strings.ToUpper(school.Name)), "", 1, "C", false, 0, "")
	if school.Address != "" {
		pdf.SetFont(fontFamily, "", 9)
		pdf.CellFormat(0, 4.5, d.tr(school.Address), "", 1, "C", false, 0, "")
	}
	pdf.SetFont(fontFamily, "", 9)
	pdf.CellFormat(0, 4.5, d.tr(school.PODOffice), "", 1, "C", false, 0, "")

	y := pdf.GetY() + 2
	pdf.Line(margin, y, margin+d.width, y)
	pdf.Ln(5)
	pdf.SetFont(fontFamily, "B", 14)
	pdf.CellFormat(0, 8, d.tr(title), "", 1, "C", false, 0, "")
	pdf.Ln(2)
}

func (d *document) section(title string) {
	d.pdf.Ln(2)
	d.pdf.SetFont(fontFamily, "B", 10)
	d.pdf.SetFillColor(230, 230, 230)
	d.pdf.CellFormat(0, lineH+1, d.tr(strings.ToUpper(title)), "", 1, "L", true, 0, "")
	d.pdf.Ln(1)
}

// field prints "label: value" pairs, two per row.
func (d *document) fields(pairs ...string) {
	colW := d.width / 2
	labelW := 32.0
	for i := 0; i+1 < len(pairs); i += 2 {
		d.pdf.SetFont(fontFamily, "B", 9)
		d.pdf.CellFormat(labelW, lineH, d.tr(pairs[i]+":"), "", 0, "L", false, 0, "")
		d.pdf.SetFont(fontFamily, "", 9)
		ln := 0
		if (i/2)%2 == 1 || i+2 >= len(pairs) {
			ln = 1
		}
		d.pdf.CellFormat(colW-labelW, lineH, d.tr(pairs[i+1]), "B", ln, "L", false, 0, "")
	}
}

func (d *document) paragraph(text string) {
	d.pdf.SetFont(fontFamily, "", 9)
	d.pdf.MultiCell(0, 5, d.tr(text), "", "L", false)
}

// box prints text in a bordered block of at least minLines lines; used for handwritten entries.
func (d *document) box(label, text string, minLines int) {
	d.pdf.SetFont(fontFamily, "B", 9)
	d.pdf.CellFormat(0, lineH, d.tr(label), "", 1, "L", false, 0, "")
	d.pdf.SetFont(fontFamily, "", 9)
	lines := d.pdf.SplitText(d.tr(text), d.width-2)
	for len(lines) < minLines {
		lines = append(lines, "")
	}
	for i, line := range lines {
		border := "LR"
		if i == 0 {
			border += "T"
		}
		if i == len(lines)-1 {
			border += "B"
		}
		d.pdf.CellFormat(0, lineH, line, border, 1, "L", false, 0, "")
	}
	d.pdf.Ln(1)
}

// table prints rows with the given column widths (fractions of the printable width).
func (d *document) table(headers []string, widths []float64, rows [][]string) {
	pdf := d.pdf
	pdf.SetFont(fontFamily, "B", 8)
	pdf.SetFillColor(240, 240, 240)
	for i, h := range headers {
		pdf.CellFormat(widths[i]*d.width, lineH, d.tr(h), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(fontFamily, "", 8)
	if len(rows) == 0 {
		pdf.CellFormat(0, lineH, "None", "1", 1, "C", false, 0, "")
		return
	}
	for _, row := range rows {
		// fit the row height to its tallest cell
		n := 1
		for i, cell := range row {
			if k := len(pdf.SplitText(d.tr(cell), widths[i]*d.width-2)); k > n {
				n = k
			}
		}
		h := float64(n) * 4.5
		_, pageH := pdf.GetPageSize()
		if pdf.GetY()+h > pageH-margin {
			pdf.AddPage()
		}
		x, y := pdf.GetX(), pdf.GetY()
		for i, cell := range row {
			w := widths[i] * d.width
			pdf.Rect(x, y, w, h, "D")
			pdf.SetXY(x, y)
			pdf.MultiCell(w, 4.5, d.tr(cell), "", "L", false)
			x += w
		}
		pdf.SetXY(margin, y+h)
	}
}

// signatures prints signature lines with names and roles beneath, up to three per row.
func (d *document) signatures(entries ...[2]string) {
	const perRow = 3
	d.pdf.Ln(8)
	colW := d.width / perRow
	for start := 0; start < len(entries); start += perRow {
		end := start + perRow
		if end > len(entries) {
			end = len(entries)
		}
		row := entries[start:end]
		d.pdf.Ln(8)
		d.pdf.SetFont(fontFamily, "B", 9)
		for _, e := range row {
			d.pdf.CellFormat(colW, 5, d.tr(strings.ToUpper(e[0])), "", 0, "C", false, 0, "")
		}
		d.pdf.Ln(-1)
		y := d.pdf.GetY()
		for i := range row {
			x := margin + float64(i)*colW
			d.pdf.Line(x+5, y, x+colW-5, y)
		}
		d.pdf.SetFont(fontFamily, "", 8)
		for _, e := range row {
			d.pdf.CellFormat(colW, 5, d.tr(e[1]), "", 0, "C", false, 0, "")
		}
		d.pdf.Ln(-1)
	}
}

func (d *document) output(w io.Writer) error {
	return d.pdf.Output(w)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("January 2, 2006")
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 2, 2006 3:04 PM")
}
