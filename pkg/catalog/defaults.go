package catalog

// System wide defaults used when no supportedDefaults entry applies.
const (
	DefaultPriority     = 50
	DefaultMaxSizeBytes = int64(-1)
)

type defaultsKey struct {
	transformer string
	source      string
}

// defaults holds the supportedDefaults entries collected during a merge.
// An empty transformer or source in the key means "any".
type defaults struct {
	priority map[defaultsKey]int
	maxSize  map[defaultsKey]int64
}

func newDefaults() *defaults {
	d := &defaults{}
	d.clear()
	return d
}

func (d *defaults) add(sd SupportedDefault) {
	key := defaultsKey{transformer: sd.TransformerName, source: sd.SourceMediaType}
	if sd.Priority != nil {
		d.priority[key] = *sd.Priority
	}
	if sd.MaxSourceSizeBytes != nil {
		d.maxSize[key] = *sd.MaxSourceSizeBytes
	}
}

// lookupKeys returns the keys to try, most specific first.
func lookupKeys(transformer, source string) []defaultsKey {
	return []defaultsKey{
		{transformer: transformer, source: source},
		{transformer: transformer},
		{source: source},
		{},
	}
}

func (d *defaults) priorityFor(transformer, source string) int {
	for _, k := range lookupKeys(transformer, source) {
		if v, ok := d.priority[k]; ok {
			return v
		}
	}
	return DefaultPriority
}

func (d *defaults) maxSizeFor(transformer, source string) int64 {
	for _, k := range lookupKeys(transformer, source) {
		if v, ok := d.maxSize[k]; ok {
			return v
		}
	}
	return DefaultMaxSizeBytes
}

// apply fills the unset limits of every supported pair.
func (d *defaults) apply(origins []Origin) {
	for i := range origins {
		t := &origins[i].Transformer
		for j := range t.Supported {
			s := &t.Supported[j]
			if s.Priority != nil && s.MaxSourceSizeBytes != nil {
				continue
			}
			if s.Priority == nil {
				p := d.priorityFor(t.Name, s.SourceMediaType)
				s.Priority = &p
			}
			if s.MaxSourceSizeBytes == nil {
				m := d.maxSizeFor(t.Name, s.SourceMediaType)
				s.MaxSourceSizeBytes = &m
			}
		}
	}
}

func (d *defaults) clear() {
	d.priority = map[defaultsKey]int{{}: DefaultPriority}
	d.maxSize = map[defaultsKey]int64{{}: DefaultMaxSizeBytes}
}
