package catalog

import (
	"strconv"
	"strings"
)

// Core options that only engines built on a recent enough core understand.
const (
	DirectAccessURL = "directAccessUrl"
	SourceFileName  = "sourceFileName"
)

// coreFunction describes the range of core versions supporting a feature.
type coreFunction struct {
	name string
	from string
}

var (
	coreDirectAccessURL = coreFunction{name: DirectAccessURL, from: "2.5.7"}
	coreSourceFileName  = coreFunction{name: SourceFileName, from: "5.1.9"}
)

func (f coreFunction) supportedBy(version string) bool {
	if version == "" {
		return false
	}
	return CompareVersions(version, f.from) >= 0
}

// CompareVersions compares dotted numeric versions such as "2.5.7". Any
// "-SNAPSHOT" style suffix is ignored, missing components count as zero and
// the empty version sorts before every other version.
func CompareVersions(a, b string) int {
	a, b = stripSuffix(a), stripSuffix(b)
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	case b == "":
		return 1
	}
	ap, bp := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < max(len(ap), len(bp)); i++ {
		if c := comparePart(part(ap, i), part(bp, i)); c != 0 {
			return c
		}
	}
	return 0
}

func stripSuffix(v string) string {
	v = strings.TrimSpace(v)
	if i := strings.IndexByte(v, '-'); i >= 0 {
		v = v[:i]
	}
	return v
}

func part(parts []string, i int) string {
	if i < len(parts) {
		return parts[i]
	}
	return "0"
}

func comparePart(a, b string) int {
	an, aerr := strconv.Atoi(a)
	bn, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

// minCoreVersion returns the lowest non-empty version, or "" if any version
// is missing.
func minCoreVersion(versions []string) string {
	lowest := ""
	for i, v := range versions {
		if v == "" {
			return ""
		}
		if i == 0 || CompareVersions(v, lowest) < 0 {
			lowest = v
		}
	}
	return lowest
}

// SetCoreVersion stamps every single step transformer of an engine
// declaration with the engine's core version and adds or removes the core
// options it supports.
func SetCoreVersion(cfg *TransformConfig, version string) {
	for i := range cfg.Transformers {
		t := &cfg.Transformers[i]
		if !t.IsSingleStep() {
			continue
		}
		t.CoreVersion = version
		setOrClearCoreOptions(t)
	}
	addOrRemoveCoreOptionSets(cfg)
}

// WithCoreVersion returns a copy of a merged configuration prepared for a
// client that asked for the given config version. Versions below 2 predate
// core versions so the field and the options depending on it are removed.
func WithCoreVersion(cfg TransformConfig, configVersion int) TransformConfig {
	out := cfg.Clone()
	keep := configVersion >= 2
	for i := range out.Transformers {
		t := &out.Transformers[i]
		if !keep {
			t.CoreVersion = ""
		}
		setOrClearCoreOptions(t)
	}
	addOrRemoveCoreOptionSets(&out)
	return out
}

func setOrClearCoreOptions(t *Transformer) {
	supported := coreDirectAccessURL.supportedBy(t.CoreVersion)
	has := t.hasOption(DirectAccessURL)
	switch {
	case supported && !has:
		t.Options = append(t.Options, DirectAccessURL)
	case !supported && has:
		t.Options = removeString(t.Options, DirectAccessURL)
	}
}

// addOrRemoveCoreOptionSets keeps the top level option sets for core options
// in step with whether any transformer supports them.
func addOrRemoveCoreOptionSets(cfg *TransformConfig) {
	for _, f := range []coreFunction{coreDirectAccessURL, coreSourceFileName} {
		supported := false
		for i := range cfg.Transformers {
			if f.supportedBy(cfg.Transformers[i].CoreVersion) {
				supported = true
				break
			}
		}
		if supported {
			if cfg.TransformOptions == nil {
				cfg.TransformOptions = make(map[string]Options)
			}
			cfg.TransformOptions[f.name] = Options{OptionValue{Name: f.name}}
		} else {
			delete(cfg.TransformOptions, f.name)
		}
	}
}

func removeString(list []string, s string) []string {
	out := list[:0:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
