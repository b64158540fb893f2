package transformers

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Letter page geometry in points, with the margins PDFBox uses.
const (
	pageWidth  = 612
	pageHeight = 792
	pageMargin = 40
)

// Object numbers fixed by textPDF. Pages are written last because it
// lists every page.
const (
	catalogObj = 1
	pagesObj   = 2
	fontObj    = 3
)

// pdfFont is a standard Type 1 font. Standard fonts need no embedding.
type pdfFont struct {
	name  string
	width func(b byte) int
}

var standardFonts = map[string]pdfFont{}

func init() {
	for _, name := range []string{"Helvetica", "Helvetica-Bold", "Helvetica-Oblique", "Helvetica-BoldOblique"} {
		standardFonts[name] = pdfFont{name: name, width: helveticaWidth}
	}
	// Times is narrower than Helvetica throughout, so its widths are safe
	// for wrapping.
	for _, name := range []string{"Times-Roman", "Times-Bold", "Times-Italic", "Times-BoldItalic"} {
		standardFonts[name] = pdfFont{name: name, width: helveticaWidth}
	}
	for _, name := range []string{"Courier", "Courier-Bold", "Courier-Oblique", "Courier-BoldOblique"} {
		standardFonts[name] = pdfFont{name: name, width: func(byte) int { return 600 }}
	}
}

// helveticaWidths are the glyph widths of printable ASCII, per 1000 units
// of font size.
var helveticaWidths = [95]int{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278, // space to /
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278, 584, 584, 584, 556, // 0 to ?
	1015, 667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, 722, 778, // @ to O
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 278, 278, 278, 469, 556, // P to _
	333, 556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, 556, 556, // ` to o
	556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584, // p to ~
}

func helveticaWidth(b byte) int {
	if b >= 32 && b <= 126 {
		return helveticaWidths[b-32]
	}
	return 556
}

// pdfWriter tracks byte offsets of the objects it writes for the xref
// table.
type pdfWriter struct {
	w       io.Writer
	n       int64
	err     error
	offsets map[int]int64
}

func (p *pdfWriter) write(s string) {
	if p.err != nil {
		return
	}
	k, err := io.WriteString(p.w, s)
	p.n += int64(k)
	p.err = err
}

func (p *pdfWriter) printf(format string, args ...any) {
	p.write(fmt.Sprintf(format, args...))
}

func (p *pdfWriter) object(num int, body string) {
	p.offsets[num] = p.n
	p.printf("%d 0 obj\n%s\nendobj\n", num, body)
}

// textPDF lays out lines of WinAnsi encoded text on Letter pages.
type textPDF struct {
	pw        *pdfWriter
	font      pdfFont
	size      float64
	leading   float64
	perPage   int
	pageLimit int

	next  int
	pages []int
	lines []string
	full  bool
}

func newTextPDF(w io.Writer, font pdfFont, size float64, pageLimit int) *textPDF {
	leading := size * 1.05
	d := &textPDF{
		pw:        &pdfWriter{w: w, offsets: make(map[int]int64)},
		font:      font,
		size:      size,
		leading:   leading,
		perPage:   max(1, int((pageHeight-2*pageMargin)/leading)),
		pageLimit: pageLimit,
		next:      fontObj + 1,
	}
	d.pw.write("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
	d.pw.object(catalogObj, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesObj))
	d.pw.object(fontObj, fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /%s /Encoding /WinAnsiEncoding >>", font.name))
	return d
}

// addLine adds one source line, wrapping it to the page width. It
// reports false once the page limit has been reached.
func (d *textPDF) addLine(line string) bool {
	for _, l := range d.wrap(line) {
		if d.full {
			return false
		}
		d.lines = append(d.lines, l)
		if len(d.lines) == d.perPage {
			d.flushPage()
		}
	}
	return !d.full
}

// newPage starts a new page, as a form feed does.
func (d *textPDF) newPage() bool {
	if !d.full {
		d.flushPage()
	}
	return !d.full
}

func (d *textPDF) flushPage() {
	var cs strings.Builder
	fmt.Fprintf(&cs, "BT\n/F1 %s Tf\n%s TL\n%d %s Td\n", num(d.size), num(d.leading), pageMargin, num(pageHeight-pageMargin-d.size))
	for i, l := range d.lines {
		if i > 0 {
			cs.WriteString("T*\n")
		}
		cs.WriteString("(" + escapePDF(l) + ") Tj\n")
	}
	cs.WriteString("ET")
	content := cs.String()

	contentObj, pageObj := d.next, d.next+1
	d.next += 2
	d.pw.object(contentObj, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	d.pw.object(pageObj, fmt.Sprintf(
		"<< /Type /Page /Parent %d 0 R /MediaBox [0 0 %d %d] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>",
		pagesObj, pageWidth, pageHeight, fontObj, contentObj))
	d.pages = append(d.pages, pageObj)
	d.lines = d.lines[:0]
	d.full = d.pageLimit > 0 && len(d.pages) >= d.pageLimit
}

// close writes the last page, the page tree and the trailer.
func (d *textPDF) close() error {
	if !d.full && (len(d.lines) > 0 || len(d.pages) == 0) {
		d.flushPage()
	}
	kids := make([]string, len(d.pages))
	for i, p := range d.pages {
		kids[i] = strconv.Itoa(p) + " 0 R"
	}
	d.pw.object(pagesObj, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(d.pages)))

	xref := d.pw.n
	d.pw.printf("xref\n0 %d\n0000000000 65535 f \n", d.next)
	for obj := 1; obj < d.next; obj++ {
		d.pw.printf("%010d 00000 n \n", d.pw.offsets[obj])
	}
	d.pw.printf("trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", d.next, catalogObj, xref)
	return d.pw.err
}

// wrap splits line at spaces so each part fits between the margins.
// Words wider than a line are split.
func (d *textPDF) wrap(line string) []string {
	maxWidth := float64(pageWidth-2*pageMargin) * 1000 / d.size
	var out []string
	for {
		width, lastSpace, cut := 0.0, -1, len(line)
		for i := 0; i < len(line); i++ {
			if line[i] == ' ' {
				lastSpace = i
			}
			width += float64(d.font.width(line[i]))
			if width > maxWidth {
				cut = i
				break
			}
		}
		if cut == len(line) {
			return append(out, line)
		}
		if lastSpace > 0 {
			out = append(out, line[:lastSpace])
			line = line[lastSpace+1:]
		} else {
			out = append(out, line[:max(cut, 1)])
			line = line[max(cut, 1):]
		}
	}
}

func escapePDF(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		switch b := s[i]; {
		case b == '(' || b == ')' || b == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(b)
		case b < 32 || b > 126:
			fmt.Fprintf(&sb, "\\%03o", b)
		default:
			sb.WriteByte(b)
		}
	}
	return sb.String()
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
