package transformers

import (
	"context"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/rhuss/wandel/pkg/debug"
	"github.com/rhuss/wandel/pkg/dispatch"
)

// TextEncoding converts text between character sets named by the
// sourceEncoding and targetEncoding options. Either defaults to UTF-8.
type TextEncoding struct{}

func (TextEncoding) Name() string { return "TextEncoding" }

func (TextEncoding) Transform(_ context.Context, req *dispatch.Request, _ io.Reader, _ io.Writer, m dispatch.Manager) error {
	dec, err := lookupEncoding(dispatch.OptionSourceEncoding, req.SourceEncoding)
	if err != nil {
		return err
	}
	enc, err := lookupEncoding(dispatch.OptionTargetEncoding, req.TargetEncoding)
	if err != nil {
		return err
	}
	debug.Log("dispatch", "text to text transform", "source_encoding", req.SourceEncoding, "target_encoding", req.TargetEncoding)

	sourcePath, err := m.CreateSourceFile()
	if err != nil {
		return err
	}
	targetPath, err := m.CreateTargetFile()
	if err != nil {
		return err
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(targetPath)
	if err != nil {
		return err
	}

	w := transform.NewWriter(dst, encoding.ReplaceUnsupported(enc.NewEncoder()))
	_, err = io.Copy(w, transform.NewReader(src, decoder(req.SourceEncoding, dec)))
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	return err
}

// lookupEncoding resolves an IANA charset name. An empty name is UTF-8.
func lookupEncoding(option, name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return unicode.UTF8, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, dispatch.BadRequest("%s=%s is not a supported encoding.", option, name)
	}
	return enc, nil
}

// decoder honours a byte order mark on Unicode sources, which may
// disagree with the declared encoding.
func decoder(name string, enc encoding.Encoding) transform.Transformer {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" || strings.HasPrefix(name, "UTF-8") || strings.HasPrefix(name, "UTF-16") {
		return unicode.BOMOverride(enc.NewDecoder())
	}
	return enc.NewDecoder()
}
