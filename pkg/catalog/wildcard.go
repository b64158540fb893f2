package catalog

import "fmt"

type pairKey struct {
	source, target string
}

type fullPairKey struct {
	source, target string
	maxSize        int64
	priority       int
}

func fullKey(s SupportedSourceAndTarget) fullPairKey {
	return fullPairKey{s.SourceMediaType, s.TargetMediaType, s.MaxSize(), s.PriorityOrDefault()}
}

// addWildcardSupported derives the supported pairs of pipelines and
// failovers that do not declare any. Transformers are already sorted so the
// steps of a transformer have been completed before it is visited. A
// transformer for which nothing can be derived is kept but will never be
// selected.
func (c *Combiner) addWildcardSupported() {
	byName := make(map[string]*Transformer, len(c.origins))
	for i := range c.origins {
		byName[c.origins[i].Transformer.Name] = &c.origins[i].Transformer
	}

	for i := range c.origins {
		o := &c.origins[i]
		t := &o.Transformer
		if len(t.Supported) > 0 || t.IsSingleStep() {
			continue
		}
		var reason string
		if t.IsFailover() {
			t.Supported, reason = c.failoverSupported(t, byName)
		} else {
			t.Supported, reason = c.pipelineSupported(t, byName)
		}
		if len(t.Supported) == 0 {
			c.error(t.Name, o.Provenance.ReadFrom,
				"No supported source and target mimetypes could be added to the transformer %s as %s.", quoteName(t.Name), reason)
		}
	}
}

// failoverSupported is the union of the step pairs with the priority
// improved by one so the failover is preferred over its own steps.
func (c *Combiner) failoverSupported(t *Transformer, byName map[string]*Transformer) ([]SupportedSourceAndTarget, string) {
	var out []SupportedSourceAndTarget
	index := make(map[pairKey]int)
	for _, name := range t.Failover {
		step, ok := byName[name]
		if !ok {
			return nil, "one of the step transformers is missing"
		}
		for _, s := range step.Supported {
			p := s.PriorityOrDefault() - 1
			size := s.MaxSize()
			pair := Pair(s.SourceMediaType, s.TargetMediaType, size, p)
			k := pairKey{s.SourceMediaType, s.TargetMediaType}
			j, seen := index[k]
			if !seen {
				index[k] = len(out)
				out = append(out, pair)
				continue
			}
			if better(pair, out[j]) {
				out[j] = pair
			}
		}
	}
	return out, "the step transforms don't support any"
}

// better reports whether a should replace b for the same source and target:
// a lower priority value wins, then the larger size limit.
func better(a, b SupportedSourceAndTarget) bool {
	if a.PriorityOrDefault() != b.PriorityOrDefault() {
		return a.PriorityOrDefault() < b.PriorityOrDefault()
	}
	return compareMaxSize(a.MaxSize(), b.MaxSize()) > 0
}

// pipelineSupported pairs the sources the first step can turn into its
// target with the targets the final step can produce from the last
// intermediate type. The limits of the first step apply.
func (c *Combiner) pipelineSupported(t *Transformer, byName map[string]*Transformer) ([]SupportedSourceAndTarget, string) {
	steps := t.Pipeline
	if len(steps) < 2 {
		return nil, "a pipeline needs at least two steps"
	}

	var (
		sourceType string
		firstPairs []SupportedSourceAndTarget
		first      *Transformer
	)
	for i, step := range steps {
		st, ok := byName[step.TransformerName]
		if !ok {
			return nil, "one of the step transformers is missing"
		}
		stepTarget := ""
		if step.TargetMediaType != nil {
			stepTarget = *step.TargetMediaType
		}

		switch {
		case i == 0:
			for _, s := range st.Supported {
				if step.TargetMediaType != nil && s.TargetMediaType == stepTarget {
					firstPairs = append(firstPairs, s.clone())
				}
			}
			if len(firstPairs) == 0 {
				return nil, fmt.Sprintf("the first step transformer %s does not support to %q", quoteName(st.Name), stepTarget)
			}
			sourceType = stepTarget
			first = st

		case i == len(steps)-1:
			if step.TargetMediaType != nil {
				return nil, "the final step should not have a target mimetype"
			}
			product := finalProduct(firstPairs, st, sourceType)
			if len(product) == 0 {
				return nil, fmt.Sprintf("the final step transformer %s does not support from %q", quoteName(st.Name), sourceType)
			}
			if c.sameOptions(t.Options, first.Options) {
				product = excludePairs(product, firstPairs)
			}
			if len(product) == 0 {
				return nil, fmt.Sprintf("the first transformer %s in the pipeline already supported all source and target mimetypes that would have been added as wildcards",
					quoteName(first.Name))
			}
			return product, ""

		default:
			if step.TargetMediaType == nil {
				return nil, "intermediate steps should have a target mimetype"
			}
			if !supports(st, sourceType, stepTarget) {
				return nil, fmt.Sprintf("the step transformer %s does not support %q to %q", quoteName(st.Name), sourceType, stepTarget)
			}
			sourceType = stepTarget
		}
	}
	return nil, "the pipeline has no final step"
}

func supports(t *Transformer, source, target string) bool {
	for _, s := range t.Supported {
		if s.matches(source, target) {
			return true
		}
	}
	return false
}

// finalProduct pairs every first step source with every target the final
// step reaches. Each pair keeps the first step's size limit and priority.
func finalProduct(firstPairs []SupportedSourceAndTarget, final *Transformer, from string) []SupportedSourceAndTarget {
	var out []SupportedSourceAndTarget
	seen := make(map[fullPairKey]bool)
	for _, f := range firstPairs {
		for _, s := range final.Supported {
			if s.SourceMediaType != from || s.TargetMediaType == MetadataExtract || s.TargetMediaType == MetadataEmbed {
				continue
			}
			pair := Pair(f.SourceMediaType, s.TargetMediaType, f.MaxSize(), f.PriorityOrDefault())
			if k := fullKey(pair); !seen[k] {
				seen[k] = true
				out = append(out, pair)
			}
		}
	}
	return out
}

func excludePairs(pairs, exclude []SupportedSourceAndTarget) []SupportedSourceAndTarget {
	drop := make(map[fullPairKey]bool, len(exclude))
	for _, e := range exclude {
		drop[fullKey(e)] = true
	}
	var out []SupportedSourceAndTarget
	for _, p := range pairs {
		if !drop[fullKey(p)] {
			out = append(out, p)
		}
	}
	return out
}

// sameOptions reports whether two transformers accept the same options,
// either because they reference the same option sets or because the sets
// they reference resolve to the same options.
func (c *Combiner) sameOptions(a, b []string) bool {
	if sameNames(a, b) {
		return true
	}
	return c.resolve(a).Equal(c.resolve(b))
}

func (c *Combiner) resolve(names []string) Options {
	var out Options
	for _, n := range names {
		out = append(out, c.options[n]...)
	}
	return out
}

func sameNames(a, b []string) bool {
	as := make(map[string]bool, len(a))
	for _, n := range a {
		as[n] = true
	}
	bs := make(map[string]bool, len(b))
	for _, n := range b {
		bs[n] = true
	}
	if len(as) != len(bs) {
		return false
	}
	for n := range as {
		if !bs[n] {
			return false
		}
	}
	return true
}
