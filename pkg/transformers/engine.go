// Package transformers holds the transformers built into the engine and
// the configuration that declares them.
package transformers

import (
	_ "embed"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/rhuss/wandel/pkg/catalog"
	"github.com/rhuss/wandel/pkg/dispatch"
)

// Option names understood by the built-in transformers.
const (
	OptionPageLimit   = "pageLimit"
	OptionPdfFont     = "pdfFont"
	OptionPdfFontSize = "pdfFontSize"
)

//go:embed engine_config.json
var engineConfig []byte

//go:embed quick.txt
var probeSource []byte

// ProbeSourceName is the name of the probe source file.
const ProbeSourceName = "quick.txt"

// EngineConfig returns the declaration of the built-in transformers.
func EngineConfig() (catalog.TransformConfig, error) {
	cfg, err := catalog.ParseJSON(engineConfig)
	if err != nil {
		return catalog.TransformConfig{}, fmt.Errorf("parsing built-in engine config: %w", err)
	}
	return cfg, nil
}

// All returns the built-in implementations.
func All() []dispatch.Transformer {
	return []dispatch.Transformer{TextToPdf{}, TextEncoding{}, PassThrough{}}
}

// ProbeSource returns the text transformed by the health probes.
func ProbeSource() []byte {
	return append([]byte(nil), probeSource...)
}

// ProbeOptions converts the probe source to ISO-8859-1, so the expected
// target length is its character count.
func ProbeOptions() (options map[string]string, expectedLength int64) {
	return map[string]string{
		dispatch.OptionSourceEncoding: "UTF-8",
		dispatch.OptionTargetEncoding: "ISO-8859-1",
	}, int64(utf8.RuneCount(probeSource))
}

// PassThroughConfig declares PassThrough for every mimetype that the
// given configurations read or write. It must be added as a pipeline
// definition, never as an engine's own configuration.
func PassThroughConfig(cfgs ...catalog.TransformConfig) catalog.TransformConfig {
	seen := make(map[string]bool)
	for _, cfg := range cfgs {
		for _, t := range cfg.Transformers {
			for _, s := range t.Supported {
				seen[s.SourceMediaType] = true
				seen[s.TargetMediaType] = true
			}
		}
	}
	delete(seen, catalog.MetadataExtract)
	delete(seen, catalog.MetadataEmbed)
	delete(seen, "")

	mimetypes := make([]string, 0, len(seen))
	for m := range seen {
		mimetypes = append(mimetypes, m)
	}
	sort.Strings(mimetypes)

	pt := catalog.Transformer{Name: catalog.PassThroughName}
	for _, m := range mimetypes {
		pt.Supported = append(pt.Supported, catalog.Pair(m, m, -1, passThroughPriority))
	}
	return catalog.TransformConfig{Transformers: []catalog.Transformer{pt}}
}
