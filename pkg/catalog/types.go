package catalog

import "fmt"

// Reserved names.
const (
	// PassThroughName may only be declared by pipeline definition files,
	// never by an engine, and never more than once.
	PassThroughName = "PassThrough"

	// MetadataExtract and MetadataEmbed are pseudo target types that are never
	// reachable through a synthesized pipeline.
	MetadataExtract = "alfresco-metadata-extract"
	MetadataEmbed   = "alfresco-metadata-embed"
)

// TransformConfig is a capability declaration as published by an engine or
// read from a pipeline definition file.
type TransformConfig struct {
	TransformOptions   map[string]Options `json:"transformOptions" yaml:"transformOptions"`
	RemoveTransformers []string           `json:"removeTransformers,omitempty" yaml:"removeTransformers,omitempty"`
	AddSupported       []SupportedChange  `json:"addSupported,omitempty" yaml:"addSupported,omitempty"`
	RemoveSupported    []SupportedChange  `json:"removeSupported,omitempty" yaml:"removeSupported,omitempty"`
	OverrideSupported  []SupportedChange  `json:"overrideSupported,omitempty" yaml:"overrideSupported,omitempty"`
	SupportedDefaults  []SupportedDefault `json:"supportedDefaults,omitempty" yaml:"supportedDefaults,omitempty"`
	Transformers       []Transformer      `json:"transformers" yaml:"transformers"`
}

// Clone returns a deep copy of the configuration.
func (c TransformConfig) Clone() TransformConfig {
	out := c
	if c.TransformOptions != nil {
		out.TransformOptions = make(map[string]Options, len(c.TransformOptions))
		for k, v := range c.TransformOptions {
			out.TransformOptions[k] = append(Options(nil), v...)
		}
	}
	out.RemoveTransformers = append([]string(nil), c.RemoveTransformers...)
	out.AddSupported = append([]SupportedChange(nil), c.AddSupported...)
	out.RemoveSupported = append([]SupportedChange(nil), c.RemoveSupported...)
	out.OverrideSupported = append([]SupportedChange(nil), c.OverrideSupported...)
	out.SupportedDefaults = append([]SupportedDefault(nil), c.SupportedDefaults...)
	if c.Transformers != nil {
		out.Transformers = make([]Transformer, len(c.Transformers))
		for i, t := range c.Transformers {
			out.Transformers[i] = t.clone()
		}
	}
	return out
}

// Transformer is a named transform: single step, pipeline or failover.
type Transformer struct {
	Name        string                     `json:"transformerName,omitempty" yaml:"transformerName,omitempty"`
	CoreVersion string                     `json:"coreVersion,omitempty" yaml:"coreVersion,omitempty"`
	Pipeline    []TransformStep            `json:"transformerPipeline,omitempty" yaml:"transformerPipeline,omitempty"`
	Failover    []string                   `json:"transformerFailover,omitempty" yaml:"transformerFailover,omitempty"`
	Supported   []SupportedSourceAndTarget `json:"supportedSourceAndTargetList,omitempty" yaml:"supportedSourceAndTargetList,omitempty"`
	Options     []string                   `json:"transformOptions,omitempty" yaml:"transformOptions,omitempty"`
}

// IsPipeline reports whether the transformer chains other transformers.
func (t *Transformer) IsPipeline() bool { return len(t.Pipeline) > 0 }

// IsFailover reports whether the transformer tries alternatives in turn.
func (t *Transformer) IsFailover() bool { return len(t.Failover) > 0 }

// IsSingleStep reports whether the transformer is executed directly by an engine.
func (t *Transformer) IsSingleStep() bool { return !t.IsPipeline() && !t.IsFailover() }

// referencedNames returns the step and failover names in declaration order
// without duplicates.
func (t *Transformer) referencedNames() []string {
	var names []string
	seen := make(map[string]bool)
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	for _, step := range t.Pipeline {
		add(step.TransformerName)
	}
	for _, n := range t.Failover {
		add(n)
	}
	return names
}

func (t Transformer) clone() Transformer {
	c := t
	if t.Pipeline != nil {
		c.Pipeline = make([]TransformStep, len(t.Pipeline))
		for i, s := range t.Pipeline {
			c.Pipeline[i] = s.clone()
		}
	}
	if t.Failover != nil {
		c.Failover = append([]string(nil), t.Failover...)
	}
	if t.Supported != nil {
		c.Supported = make([]SupportedSourceAndTarget, len(t.Supported))
		for i, s := range t.Supported {
			c.Supported[i] = s.clone()
		}
	}
	if t.Options != nil {
		c.Options = append([]string(nil), t.Options...)
	}
	return c
}

// hasOption reports whether the transformer references the named option set.
func (t *Transformer) hasOption(name string) bool {
	for _, o := range t.Options {
		if o == name {
			return true
		}
	}
	return false
}

// TransformStep is one step of a pipeline. Only the final step has a nil
// target media type.
type TransformStep struct {
	TransformerName string  `json:"transformerName" yaml:"transformerName"`
	TargetMediaType *string `json:"targetMediaType,omitempty" yaml:"targetMediaType,omitempty"`
}

func (s TransformStep) clone() TransformStep {
	if s.TargetMediaType != nil {
		v := *s.TargetMediaType
		s.TargetMediaType = &v
	}
	return s
}

// Step builds a pipeline step. An empty target produces a final step.
func Step(name, target string) TransformStep {
	s := TransformStep{TransformerName: name}
	if target != "" {
		s.TargetMediaType = &target
	}
	return s
}

// SupportedSourceAndTarget is one supported conversion of a transformer.
// Nil limits are filled from the supported defaults during a merge.
type SupportedSourceAndTarget struct {
	SourceMediaType    string `json:"sourceMediaType" yaml:"sourceMediaType"`
	TargetMediaType    string `json:"targetMediaType" yaml:"targetMediaType"`
	MaxSourceSizeBytes *int64 `json:"maxSourceSizeBytes,omitempty" yaml:"maxSourceSizeBytes,omitempty"`
	Priority           *int   `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// Pair builds a fully specified supported pair.
func Pair(source, target string, maxSize int64, priority int) SupportedSourceAndTarget {
	return SupportedSourceAndTarget{
		SourceMediaType:    source,
		TargetMediaType:    target,
		MaxSourceSizeBytes: &maxSize,
		Priority:           &priority,
	}
}

func (s SupportedSourceAndTarget) clone() SupportedSourceAndTarget {
	if s.MaxSourceSizeBytes != nil {
		v := *s.MaxSourceSizeBytes
		s.MaxSourceSizeBytes = &v
	}
	if s.Priority != nil {
		v := *s.Priority
		s.Priority = &v
	}
	return s
}

// MaxSize returns the size limit, -1 when unlimited or unset.
func (s SupportedSourceAndTarget) MaxSize() int64 {
	if s.MaxSourceSizeBytes == nil {
		return -1
	}
	return *s.MaxSourceSizeBytes
}

// PriorityOrDefault returns the priority, DefaultPriority when unset.
func (s SupportedSourceAndTarget) PriorityOrDefault() int {
	if s.Priority == nil {
		return DefaultPriority
	}
	return *s.Priority
}

func (s SupportedSourceAndTarget) matches(source, target string) bool {
	return s.SourceMediaType == source && s.TargetMediaType == target
}

// SupportedChange is an addSupported, removeSupported or overrideSupported
// directive. The limits are ignored for removals.
type SupportedChange struct {
	TransformerName    string `json:"transformerName" yaml:"transformerName"`
	SourceMediaType    string `json:"sourceMediaType" yaml:"sourceMediaType"`
	TargetMediaType    string `json:"targetMediaType" yaml:"targetMediaType"`
	MaxSourceSizeBytes *int64 `json:"maxSourceSizeBytes,omitempty" yaml:"maxSourceSizeBytes,omitempty"`
	Priority           *int   `json:"priority,omitempty" yaml:"priority,omitempty"`
}

func (c SupportedChange) complete() bool {
	return c.TransformerName != "" && c.SourceMediaType != "" && c.TargetMediaType != ""
}

func (c SupportedChange) String() string {
	s := fmt.Sprintf("{transformerName=%q, sourceMediaType=%q, targetMediaType=%q", c.TransformerName, c.SourceMediaType, c.TargetMediaType)
	if c.MaxSourceSizeBytes != nil {
		s += fmt.Sprintf(", maxSourceSizeBytes=%d", *c.MaxSourceSizeBytes)
	}
	if c.Priority != nil {
		s += fmt.Sprintf(", priority=%d", *c.Priority)
	}
	return s + "}"
}

// SupportedDefault sets the priority and/or size limit used for supported
// pairs that do not declare them. An empty transformer name or source media
// type widens the scope of the default.
type SupportedDefault struct {
	TransformerName    string `json:"transformerName,omitempty" yaml:"transformerName,omitempty"`
	SourceMediaType    string `json:"sourceMediaType,omitempty" yaml:"sourceMediaType,omitempty"`
	MaxSourceSizeBytes *int64 `json:"maxSourceSizeBytes,omitempty" yaml:"maxSourceSizeBytes,omitempty"`
	Priority           *int   `json:"priority,omitempty" yaml:"priority,omitempty"`
}

func (d SupportedDefault) String() string {
	s := fmt.Sprintf("{transformerName=%q, sourceMediaType=%q", d.TransformerName, d.SourceMediaType)
	if d.MaxSourceSizeBytes != nil {
		s += fmt.Sprintf(", maxSourceSizeBytes=%d", *d.MaxSourceSizeBytes)
	}
	if d.Priority != nil {
		s += fmt.Sprintf(", priority=%d", *d.Priority)
	}
	return s + "}"
}

// Provenance records where a transformer declaration came from. BaseURL is
// empty for pipeline definition files and set for engine declarations.
type Provenance struct {
	ReadFrom string `json:"readFrom"`
	BaseURL  string `json:"baseUrl,omitempty"`
}

// IsEngine reports whether the declaration was published by an engine.
func (p Provenance) IsEngine() bool { return p.BaseURL != "" }

// Origin pairs a transformer with its provenance. Lookups and overrides are
// keyed on the transformer only.
type Origin struct {
	Transformer Transformer
	Provenance  Provenance
}

// quoteName formats a transformer name for diagnostics.
func quoteName(name string) string {
	if name == "" {
		return " without a name"
	}
	return fmt.Sprintf("%q", name)
}
