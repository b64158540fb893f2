package dispatch

import (
	"sort"
	"strings"

	"github.com/rhuss/wandel/pkg/catalog"
)

// Request options that describe the request itself rather than the
// transform. They are removed before selection.
const (
	OptionSourceExtension = "sourceExtension"
	OptionTargetExtension = "targetExtension"
	OptionSourceMimetype  = "sourceMimetype"
	OptionTargetMimetype  = "targetMimetype"
	OptionSourceEncoding  = "sourceEncoding"
	OptionTargetEncoding  = "targetEncoding"
	OptionTimeout         = "timeout"
)

var requestOnly = map[string]bool{
	OptionSourceExtension:   true,
	OptionTargetExtension:   true,
	OptionSourceMimetype:    true,
	OptionTargetMimetype:    true,
	catalog.DirectAccessURL: true,
}

// NormalizeOptions returns a copy of options without request-only keys or
// empty values.
func NormalizeOptions(options map[string]string) map[string]string {
	out := make(map[string]string, len(options))
	for k, v := range options {
		if requestOnly[k] || strings.TrimSpace(v) == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// FormatOptions renders options as "k1=v1, k2=v2" in key order.
func FormatOptions(options map[string]string) string {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + options[k]
	}
	return strings.Join(parts, ", ")
}

func noTransformsMessage(source, target string, options map[string]string) string {
	return strings.TrimSpace("No transforms for: " + source + " -> " + target + " " + FormatOptions(options))
}
