package catalog

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// Combiner merges the declarations of several engines and pipeline files
// into one consistent configuration. Declarations must be added in the
// order in which they should take precedence: later ones win.
//
// A Combiner is not safe for concurrent use. Create one per merge.
type Combiner struct {
	logger   *slog.Logger
	options  map[string]Options
	origins  []Origin
	defaults *defaults
	diags    Diagnostics

	// passThrough is the reserved name only pipeline files may declare.
	passThrough string
}

// Result is the output of a merge.
type Result struct {
	Config      TransformConfig
	Origins     []Origin
	Diagnostics Diagnostics
}

// NewCombiner creates an empty Combiner.
func NewCombiner(logger *slog.Logger) *Combiner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Combiner{
		logger:      logger,
		options:     make(map[string]Options),
		defaults:    newDefaults(),
		passThrough: PassThroughName,
	}
}

// AddConfig adds one declaration. readFrom describes the source for
// diagnostics, baseURL is the engine address or empty for pipeline files.
// The declaration is copied; the caller keeps ownership of cfg.
func (c *Combiner) AddConfig(cfg TransformConfig, readFrom, baseURL string) {
	prov := Provenance{ReadFrom: readFrom, BaseURL: baseURL}

	c.removeTransformers(cfg.RemoveTransformers, prov)
	c.supportedDefaults(cfg.SupportedDefaults, prov)
	c.removeSupported(cfg.RemoveSupported, prov)
	c.addSupported(cfg.AddSupported, prov)
	c.overrideSupported(cfg.OverrideSupported, prov)

	for name, opts := range cfg.TransformOptions {
		c.options[name] = opts
	}
	for _, t := range cfg.Transformers {
		c.origins = append(c.origins, Origin{Transformer: t.clone(), Provenance: prov})
	}
}

// Combine validates, orders and completes the added declarations. The
// Combiner should not be reused afterwards.
func (c *Combiner) Combine() *Result {
	c.removeInvalid()
	c.sortTransformers()
	c.defaults.apply(c.origins)
	c.addWildcardSupported()
	c.setMultiStepCoreVersions()
	c.defaults.clear()

	transformers := make([]Transformer, len(c.origins))
	for i, o := range c.origins {
		transformers[i] = o.Transformer
	}
	cfg := TransformConfig{
		TransformOptions: c.options,
		Transformers:     transformers,
	}
	addOrRemoveCoreOptionSets(&cfg)
	c.logger.Debug("combined transform config",
		"transformers", len(transformers),
		"option_sets", len(cfg.TransformOptions),
		"diagnostics", len(c.diags))
	return &Result{
		Config:      cfg,
		Origins:     c.origins,
		Diagnostics: c.diags,
	}
}

func (c *Combiner) warn(name, readFrom, format string, args ...any) {
	c.report(SeverityWarning, name, readFrom, format, args...)
}

func (c *Combiner) error(name, readFrom, format string, args ...any) {
	c.report(SeverityError, name, readFrom, format, args...)
}

func (c *Combiner) report(sev Severity, name, readFrom, format string, args ...any) {
	msg := fmt.Sprintf(format, args...) + " Read from " + readFrom
	c.diags = append(c.diags, Diagnostic{Severity: sev, Transformer: name, ReadFrom: readFrom, Message: msg})
}

// lastIndexOf returns the position of the last transformer with the given name
// at or before limit, or -1.
func (c *Combiner) lastIndexOf(name string, limit int) int {
	for i := min(limit, len(c.origins)-1); i >= 0; i-- {
		if c.origins[i].Transformer.Name == name {
			return i
		}
	}
	return -1
}

func (c *Combiner) find(name string) *Transformer {
	if i := c.lastIndexOf(name, len(c.origins)-1); i >= 0 {
		return &c.origins[i].Transformer
	}
	return nil
}

func (c *Combiner) unprocessed(element string, items []string, prov Provenance) {
	if len(items) == 0 {
		return
	}
	c.warn("", prov.ReadFrom, "Unable to process %q: [%s].", element, strings.Join(items, ", "))
}

func (c *Combiner) removeTransformers(names []string, prov Provenance) {
	var leftover []string
	for _, name := range names {
		i := c.lastIndexOf(name, len(c.origins)-1)
		if name == "" || i < 0 {
			leftover = append(leftover, fmt.Sprintf("%q", name))
			continue
		}
		c.origins = slices.DeleteFunc(c.origins, func(o Origin) bool { return o.Transformer.Name == name })
	}
	c.unprocessed("removeTransformers", leftover, prov)
}

func (c *Combiner) supportedDefaults(entries []SupportedDefault, prov Provenance) {
	var leftover []string
	for _, d := range entries {
		if d.Priority == nil && d.MaxSourceSizeBytes == nil {
			leftover = append(leftover, d.String())
			continue
		}
		c.defaults.add(d)
	}
	c.unprocessed("supportedDefaults", leftover, prov)
}

func (c *Combiner) removeSupported(changes []SupportedChange, prov Provenance) {
	var leftover []string
	for _, ch := range changes {
		t := c.findForChange(ch)
		if t == nil {
			leftover = append(leftover, ch.String())
			continue
		}
		before := len(t.Supported)
		t.Supported = slices.DeleteFunc(t.Supported, func(s SupportedSourceAndTarget) bool {
			return s.matches(ch.SourceMediaType, ch.TargetMediaType)
		})
		if len(t.Supported) == before {
			leftover = append(leftover, ch.String())
		}
	}
	c.unprocessed("removeSupported", leftover, prov)
}

func (c *Combiner) addSupported(changes []SupportedChange, prov Provenance) {
	var leftover []string
	for _, ch := range changes {
		t := c.findForChange(ch)
		if t == nil || supportedIndex(t, ch) >= 0 {
			leftover = append(leftover, ch.String())
			continue
		}
		s := SupportedSourceAndTarget{SourceMediaType: ch.SourceMediaType, TargetMediaType: ch.TargetMediaType}
		if ch.MaxSourceSizeBytes != nil {
			v := *ch.MaxSourceSizeBytes
			s.MaxSourceSizeBytes = &v
		}
		if ch.Priority != nil {
			v := *ch.Priority
			s.Priority = &v
		}
		t.Supported = append(t.Supported, s)
	}
	c.unprocessed("addSupported", leftover, prov)
}

func (c *Combiner) overrideSupported(changes []SupportedChange, prov Provenance) {
	var leftover []string
	for _, ch := range changes {
		t := c.findForChange(ch)
		if t == nil {
			leftover = append(leftover, ch.String())
			continue
		}
		i := supportedIndex(t, ch)
		if i < 0 {
			leftover = append(leftover, ch.String())
			continue
		}
		s := &t.Supported[i]
		if ch.MaxSourceSizeBytes != nil {
			v := *ch.MaxSourceSizeBytes
			s.MaxSourceSizeBytes = &v
		} else {
			s.MaxSourceSizeBytes = nil
		}
		if ch.Priority != nil {
			v := *ch.Priority
			s.Priority = &v
		} else {
			s.Priority = nil
		}
	}
	c.unprocessed("overrideSupported", leftover, prov)
}

func (c *Combiner) findForChange(ch SupportedChange) *Transformer {
	if !ch.complete() {
		return nil
	}
	return c.find(ch.TransformerName)
}

func supportedIndex(t *Transformer, ch SupportedChange) int {
	return slices.IndexFunc(t.Supported, func(s SupportedSourceAndTarget) bool {
		return s.matches(ch.SourceMediaType, ch.TargetMediaType)
	})
}

// removeInvalid drops unusable transformers and resolves duplicate names:
// a later declaration replaces an earlier one with the same name, subject to
// rules about who may override what.
func (c *Combiner) removeInvalid() {
	for i := 0; i < len(c.origins); i++ {
		drop, replaced := c.check(i)
		switch {
		case drop:
			c.origins = slices.Delete(c.origins, i, i+1)
			i--
		case replaced >= 0:
			c.origins = slices.Delete(c.origins, replaced, replaced+1)
			if i >= replaced {
				i--
			}
		}
	}
}

// check validates the transformer at index i. It reports whether it must be
// dropped, or the index of an earlier declaration it replaces (-1 if none).
func (c *Combiner) check(i int) (drop bool, replaced int) {
	o := &c.origins[i]
	t := &o.Transformer
	readFrom := o.Provenance.ReadFrom
	name := t.Name

	if t.IsPipeline() && t.IsFailover() {
		c.error(name, readFrom, "Transformer %s cannot have pipeline and failover sections.", quoteName(name))
		return true, -1
	}
	if strings.TrimSpace(name) == "" {
		c.error(name, readFrom, "Transformer names may not be null.")
		return true, -1
	}
	if name == c.passThrough && o.Provenance.IsEngine() {
		c.error(name, readFrom, "T-Engines should not use %s as a transform name.", quoteName(name))
		return true, -1
	}
	for _, label := range t.Options {
		if _, ok := c.options[label]; !ok {
			c.error(name, readFrom, "Transformer %s references %q which do not exist.", quoteName(name), label)
			return true, -1
		}
	}

	singleStep := t.IsSingleStep() && name != c.passThrough
	earlier := c.lastIndexOf(name, i-1)
	if earlier >= 0 {
		prev := &c.origins[earlier]
		switch {
		case o.Provenance.IsEngine():
			c.error(name, readFrom, "Transformer %s must be a unique name.", quoteName(name))
			return true, -1
		case name == c.passThrough:
			c.error(name, readFrom, "Pipeline files should not use %s as a transform name.", quoteName(name))
			return true, -1
		case singleStep && !prev.Transformer.IsSingleStep():
			c.error(name, readFrom, "Single step transformers (such as %s) may not override a pipeline or failover transform as there is no T-Engine to perform work.", quoteName(name))
			return true, -1
		}
		if singleStep {
			// The work is still done by the engine that declared it first.
			o.Provenance.BaseURL = prev.Provenance.BaseURL
		}
		return false, earlier
	}

	if singleStep && !o.Provenance.IsEngine() {
		c.error(name, readFrom, "Single step transformers (such as %s) must be defined in a T-Engine rather than in a pipeline file, unless they are overriding an existing single step definition.", quoteName(name))
		return true, -1
	}
	return false, -1
}

// sortTransformers orders transformers so that every pipeline or failover
// comes after the transformers it references. Anything that references a
// missing transformer is dropped.
func (c *Combiner) sortTransformers() {
	todo := c.origins
	sorted := make([]Origin, 0, len(todo))
	placed := make(map[string]bool, len(todo))

	for added := true; added && len(todo) > 0; {
		added = false
		var next []Origin
		for _, o := range todo {
			if c.referencesPlaced(&o.Transformer, placed) {
				sorted = append(sorted, o)
				placed[o.Transformer.Name] = true
				added = true
			} else {
				next = append(next, o)
			}
		}
		todo = next
	}

	for _, o := range todo {
		var missing []string
		for _, n := range o.Transformer.referencedNames() {
			if !placed[n] {
				missing = append(missing, fmt.Sprintf("%q", n))
			}
		}
		c.warn(o.Transformer.Name, o.Provenance.ReadFrom, "Transformer %s ignored as step transforms (%s) do not exist.",
			quoteName(o.Transformer.Name), strings.Join(missing, ", "))
	}
	c.origins = sorted
}

func (c *Combiner) referencesPlaced(t *Transformer, placed map[string]bool) bool {
	for _, n := range t.referencedNames() {
		if !placed[n] {
			return false
		}
	}
	return true
}

func (c *Combiner) setMultiStepCoreVersions() {
	for i := range c.origins {
		t := &c.origins[i].Transformer
		if t.IsSingleStep() {
			continue
		}
		var versions []string
		for _, n := range t.referencedNames() {
			if step := c.find(n); step != nil {
				versions = append(versions, step.CoreVersion)
			}
		}
		t.CoreVersion = minCoreVersion(versions)
		setOrClearCoreOptions(t)
	}
}
