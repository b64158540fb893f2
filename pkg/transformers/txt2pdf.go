package transformers

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/rhuss/wandel/pkg/dispatch"
)

const (
	defaultFont     = "Helvetica"
	defaultFontSize = 10
	tabWidth        = 4
)

// TextToPdf renders plain text as a PDF using a standard font. Options
// are pageLimit, pdfFont (a standard font name), pdfFontSize and
// sourceEncoding.
type TextToPdf struct{}

func (TextToPdf) Name() string { return "TxT2Pdf" }

func (TextToPdf) Transform(_ context.Context, req *dispatch.Request, in io.Reader, out io.Writer, _ dispatch.Manager) error {
	pageLimit := -1
	if v, ok := req.Options[OptionPageLimit]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return dispatch.BadRequest("Expecting a numeric value for %s but got %q", OptionPageLimit, v)
		}
		pageLimit = n
	}

	font, ok := standardFonts[req.Options[OptionPdfFont]]
	if !ok {
		font = standardFonts[defaultFont]
	}

	size := float64(defaultFontSize)
	if v := strings.TrimSpace(req.Options[OptionPdfFontSize]); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			slog.Warn("invalid pdf font size, using the default", "value", v, "default", defaultFontSize)
		} else {
			size = float64(n)
		}
	}

	enc, err := lookupEncoding(dispatch.OptionSourceEncoding, req.SourceEncoding)
	if err != nil {
		return err
	}
	r := bufio.NewReader(transform.NewReader(in, decoder(req.SourceEncoding, enc)))

	doc := newTextPDF(out, font, size, pageLimit)
	for more := true; more; {
		line, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if line != "" || err == nil {
			more = addText(doc, strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			break
		}
	}
	return doc.close()
}

// addText adds a line, starting a new page at each form feed.
func addText(doc *textPDF, line string) bool {
	parts := strings.Split(line, "\f")
	for i, part := range parts {
		if i > 0 && !doc.newPage() {
			return false
		}
		if part == "" && len(parts) > 1 {
			continue
		}
		if !doc.addLine(winAnsi(part)) {
			return false
		}
	}
	return true
}

// winAnsi converts text to the font's single byte encoding. Characters
// it cannot represent become '?'.
func winAnsi(s string) string {
	s = strings.ReplaceAll(s, "\t", strings.Repeat(" ", tabWidth))
	b := make([]byte, 0, len(s))
	for _, r := range s {
		c, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			c = '?'
		}
		b = append(b, c)
	}
	return string(b)
}
