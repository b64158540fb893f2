package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ErrMissingMediaType is returned when a lookup is made without a source or
// target media type.
var ErrMissingMediaType = errors.New("missing media type")

// optionTimeout is never used to pick a transformer.
const optionTimeout = "timeout"

// SupportedTransform is a candidate for one source and target media type.
type SupportedTransform struct {
	Name               string      `json:"name"`
	Options            OptionGroup `json:"-"`
	MaxSourceSizeBytes int64       `json:"maxSourceSizeBytes"`
	Priority           int         `json:"priority"`
}

// Index answers selection queries against a merged configuration. It is
// immutable apart from the rendition memo and safe for concurrent use.
type Index struct {
	transforms   map[string]map[string][]SupportedTransform
	coreVersions map[string]string
	origins      map[string]Origin
	options      map[string]OptionGroup
	transformers int
	pairs        int

	renditions sync.Map // renditionKey -> []SupportedTransform
}

type renditionKey struct {
	rendition, source string
}

// BuildIndex registers every supported pair of every transformer in cfg.
func BuildIndex(cfg TransformConfig, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	x := &Index{
		transforms:   make(map[string]map[string][]SupportedTransform),
		coreVersions: make(map[string]string),
		origins:      make(map[string]Origin),
		options:      make(map[string]OptionGroup),
	}
	for _, t := range cfg.Transformers {
		x.transformers++
		x.coreVersions[t.Name] = t.CoreVersion
		x.origins[t.Name] = Origin{Transformer: t}
		opts := lookupOptions(t.Options, cfg.TransformOptions, func(name string) {
			logger.Error("transform options do not exist, ignored", "transformer", t.Name, "name", name)
		})
		x.options[t.Name] = OptionGroup{Required: true, Options: opts}
		for _, s := range t.Supported {
			targets := x.transforms[s.SourceMediaType]
			if targets == nil {
				targets = make(map[string][]SupportedTransform)
				x.transforms[s.SourceMediaType] = targets
			}
			targets[s.TargetMediaType] = append(targets[s.TargetMediaType], SupportedTransform{
				Name:               t.Name,
				Options:            x.options[t.Name],
				MaxSourceSizeBytes: s.MaxSize(),
				Priority:           s.PriorityOrDefault(),
			})
			x.pairs++
		}
	}
	return x
}

// lookupOptions wraps each referenced option set in an optional group. A
// single set is used as is.
func lookupOptions(names []string, sets map[string]Options, missing func(string)) Options {
	var out Options
	for _, name := range names {
		set, ok := sets[name]
		if !ok {
			missing(name)
			continue
		}
		out = append(out, OptionGroup{Required: false, Options: set})
	}
	if len(out) == 1 {
		return out[0].(OptionGroup).Options
	}
	return out
}

// TransformerCount returns the number of registered transformers.
func (x *Index) TransformerCount() int { return x.transformers }

// PairCount returns the number of registered source and target pairs.
func (x *Index) PairCount() int { return x.pairs }

// CoreVersion returns the core version of a transformer, "" if unknown.
func (x *Index) CoreVersion(transformer string) string { return x.coreVersions[transformer] }

// SetProvenance records where the indexed transformers were declared, so
// that Origin can tell local transformers from those of other engines. It
// must be called before the index is shared.
func (x *Index) SetProvenance(origins []Origin) {
	for _, o := range origins {
		if _, ok := x.origins[o.Transformer.Name]; ok {
			x.origins[o.Transformer.Name] = o
		}
	}
}

// Origin returns the definition of a transformer: its pipeline steps or
// failover alternatives, and where it was declared.
func (x *Index) Origin(transformer string) (Origin, bool) {
	o, ok := x.origins[transformer]
	return o, ok
}

// Options returns the option structure of a transformer.
func (x *Index) Options(transformer string) OptionGroup {
	return x.options[transformer]
}

// Candidates returns the transformers that could perform the conversion
// with the given options, ordered by increasing size limit. Lower priority
// candidates that can never be chosen are already discarded. When a
// rendition name is supplied the result is memoized per rendition and source.
func (x *Index) Candidates(source, target string, options map[string]string, rendition string) ([]SupportedTransform, error) {
	rendition = strings.TrimSpace(rendition)
	if rendition != "" {
		if cached, ok := x.renditions.Load(renditionKey{rendition, source}); ok {
			return cached.([]SupportedTransform), nil
		}
	}

	list, err := x.build(source, target, withoutTimeout(options))
	if err != nil {
		return nil, err
	}
	if rendition != "" {
		x.renditions.Store(renditionKey{rendition, source}, list)
	}
	return list, nil
}

// FindTransformerName returns the transformer to use for a source of the
// given size, or "" if none can do it. A size of -1 means unknown.
func (x *Index) FindTransformerName(source string, size int64, target string, options map[string]string, rendition string) (string, error) {
	list, err := x.Candidates(source, target, options, rendition)
	if err != nil {
		return "", err
	}
	for _, t := range list {
		if t.MaxSourceSizeBytes == -1 || t.MaxSourceSizeBytes >= size {
			return t.Name, nil
		}
	}
	return "", nil
}

// FindMaxSize returns the largest source size that can be transformed, -1
// for unlimited and 0 when the conversion is not supported.
func (x *Index) FindMaxSize(source, target string, options map[string]string, rendition string) (int64, error) {
	list, err := x.Candidates(source, target, options, rendition)
	if err != nil {
		return 0, err
	}
	if len(list) == 0 {
		return 0, nil
	}
	return list[len(list)-1].MaxSourceSizeBytes, nil
}

// IsSupported reports whether a conversion is possible at any size.
func (x *Index) IsSupported(source string, size int64, target string, options map[string]string, rendition string) bool {
	name, err := x.FindTransformerName(source, size, target, options, rendition)
	return err == nil && name != ""
}

func (x *Index) build(source, target string, options map[string]string) ([]SupportedTransform, error) {
	if source == "" {
		return nil, fmt.Errorf("%w: Null value provided for sourceMimetype, please provide a value", ErrMissingMediaType)
	}
	if target == "" {
		return nil, fmt.Errorf("%w: Null value provided for targetMimetype, please provide a value", ErrMissingMediaType)
	}

	var list []SupportedTransform
	for _, st := range x.transforms[source][target] {
		if OptionsMatch(st.Options, options) {
			list = addBySize(list, st)
		}
	}
	return list, nil
}

func withoutTimeout(options map[string]string) map[string]string {
	if _, ok := options[optionTimeout]; !ok {
		if options == nil {
			return map[string]string{}
		}
		return options
	}
	out := make(map[string]string, len(options))
	for k, v := range options {
		if k != optionTimeout {
			out[k] = v
		}
	}
	return out
}

// compareMaxSize orders size limits with -1 meaning unlimited.
func compareMaxSize(a, b int64) int {
	switch {
	case a == b:
		return 0
	case a == -1:
		return 1
	case b == -1:
		return -1
	case a < b:
		return -1
	default:
		return 1
	}
}

// addBySize adds a candidate keeping the list in increasing size order.
// Candidates that are both smaller (or equal) and of lower priority than
// another are discarded as they would never be picked. A later candidate
// with the same size and priority replaces the earlier one.
func addBySize(list []SupportedTransform, st SupportedTransform) []SupportedTransform {
	if len(list) == 0 {
		return append(list, st)
	}
	for i := 0; i < len(list); i++ {
		existing := list[i]
		cmpSize := compareMaxSize(st.MaxSourceSizeBytes, existing.MaxSourceSizeBytes)
		cmpPriority := existing.Priority - st.Priority

		switch {
		case cmpSize == 0:
			if cmpPriority >= 0 {
				list[i] = st
				if cmpPriority > 0 {
					list = discardAfter(list, i)
				}
			}
			return list

		case cmpSize < 0:
			if cmpPriority > 0 {
				list = append(list[:i], append([]SupportedTransform{st}, list[i:]...)...)
				list = discardAfter(list, i)
			}
			return list

		default:
			if cmpPriority < 0 {
				if i+1 < len(list) {
					continue
				}
				return append(list, st)
			}
			list[i] = st
			return discardAfter(list, i)
		}
	}
	return list
}

// discardAfter removes the candidates following i that the one at i makes
// redundant: same or lower priority and no larger size limit.
func discardAfter(list []SupportedTransform, i int) []SupportedTransform {
	st := list[i]
	j := i + 1
	for j < len(list) {
		existing := list[j]
		if existing.Priority-st.Priority >= 0 && compareMaxSize(st.MaxSourceSizeBytes, existing.MaxSourceSizeBytes) >= 0 {
			list = append(list[:j], list[j+1:]...)
			continue
		}
		break
	}
	return list
}
