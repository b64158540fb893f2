package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// TransformOption is either an OptionValue or an OptionGroup.
type TransformOption interface {
	IsRequired() bool
	key() string
}

// OptionValue is a single named option.
type OptionValue struct {
	Name     string
	Required bool
}

// IsRequired reports whether the option must be supplied.
func (v OptionValue) IsRequired() bool { return v.Required }

func (v OptionValue) key() string {
	return fmt.Sprintf("v(%s,%t)", v.Name, v.Required)
}

// OptionGroup is a set of options. Required means that if any option in the
// group is supplied, every required member must be too.
type OptionGroup struct {
	Required bool
	Options  Options
}

// IsRequired reports whether the group is required.
func (g OptionGroup) IsRequired() bool { return g.Required }

func (g OptionGroup) key() string {
	return fmt.Sprintf("g(%t,%s)", g.Required, g.Options.key())
}

// Options is a set of transform options. Duplicates are ignored when
// comparing sets.
type Options []TransformOption

// key returns a canonical form used for set comparison.
func (o Options) key() string {
	keys := make([]string, 0, len(o))
	seen := make(map[string]bool, len(o))
	for _, opt := range o {
		k := opt.key()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return "[" + strings.Join(keys, ",") + "]"
}

// Equal reports whether both sets hold the same options.
func (o Options) Equal(other Options) bool {
	return o.key() == other.key()
}

// Value is a convenience constructor for an option value.
func Value(name string, required bool) TransformOption {
	return OptionValue{Name: name, Required: required}
}

// Group is a convenience constructor for an option group.
func Group(required bool, options ...TransformOption) TransformOption {
	return OptionGroup{Required: required, Options: options}
}

// Wire form: {"value":{"name":"x","required":true}} or
// {"group":{"required":true,"transformOptions":[...]}}.
type valueWire struct {
	Name     string `json:"name" yaml:"name"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

type groupWire struct {
	Required         bool    `json:"required,omitempty" yaml:"required,omitempty"`
	TransformOptions Options `json:"transformOptions" yaml:"transformOptions"`
}

type optionWire struct {
	Value *valueWire `json:"value,omitempty" yaml:"value,omitempty"`
	Group *groupWire `json:"group,omitempty" yaml:"group,omitempty"`
}

func toWire(opt TransformOption) (optionWire, error) {
	switch o := opt.(type) {
	case OptionValue:
		return optionWire{Value: &valueWire{Name: o.Name, Required: o.Required}}, nil
	case OptionGroup:
		opts := o.Options
		if opts == nil {
			opts = Options{}
		}
		return optionWire{Group: &groupWire{Required: o.Required, TransformOptions: opts}}, nil
	default:
		return optionWire{}, fmt.Errorf("unknown transform option type %T", opt)
	}
}

func fromWire(w optionWire) (TransformOption, error) {
	switch {
	case w.Value != nil && w.Group != nil:
		return nil, fmt.Errorf("transform option may not be both a value and a group")
	case w.Value != nil:
		return OptionValue{Name: w.Value.Name, Required: w.Value.Required}, nil
	case w.Group != nil:
		return OptionGroup{Required: w.Group.Required, Options: w.Group.TransformOptions}, nil
	default:
		return nil, fmt.Errorf("transform option must be a value or a group")
	}
}

// MarshalJSON implements json.Marshaler.
func (o Options) MarshalJSON() ([]byte, error) {
	wires := make([]optionWire, 0, len(o))
	for _, opt := range o {
		w, err := toWire(opt)
		if err != nil {
			return nil, err
		}
		wires = append(wires, w)
	}
	return json.Marshal(wires)
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Options) UnmarshalJSON(data []byte) error {
	var wires []optionWire
	if err := json.Unmarshal(data, &wires); err != nil {
		return err
	}
	return o.setFromWire(wires)
}

// MarshalYAML implements yaml.Marshaler.
func (o Options) MarshalYAML() (any, error) {
	wires := make([]optionWire, 0, len(o))
	for _, opt := range o {
		w, err := toWire(opt)
		if err != nil {
			return nil, err
		}
		wires = append(wires, w)
	}
	return wires, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (o *Options) UnmarshalYAML(node *yaml.Node) error {
	var wires []optionWire
	if err := node.Decode(&wires); err != nil {
		return err
	}
	return o.setFromWire(wires)
}

func (o *Options) setFromWire(wires []optionWire) error {
	out := make(Options, 0, len(wires))
	for i, w := range wires {
		opt, err := fromWire(w)
		if err != nil {
			return fmt.Errorf("transformOptions[%d]: %w", i, err)
		}
		out = append(out, opt)
	}
	*o = out
	return nil
}

// possibleOptions collects the options that may be supplied for a group,
// mapped to whether each is required. It returns true if anything was added.
// A required group only forces its members when the parent was required or
// one of its members was actually supplied.
func possibleOptions(group OptionGroup, parentRequired bool, actual map[string]string, possible map[string]bool) bool {
	added := false
	required := false
	groupRequired := group.Required && parentRequired

	for _, opt := range group.Options {
		switch o := opt.(type) {
		case OptionGroup:
			if possibleOptions(o, groupRequired, actual, possible) {
				required = true
			}
		case OptionValue:
			if _, ok := actual[o.Name]; ok {
				required = true
			}
		}
	}

	if required || groupRequired {
		for _, opt := range group.Options {
			if v, ok := opt.(OptionValue); ok {
				possible[v.Name] = v.Required
			}
		}
		added = true
	}
	return added
}

// GatherPossibleOptions returns every option name that may be supplied
// with the actual options, mapped to whether it is then required.
func GatherPossibleOptions(group OptionGroup, actual map[string]string) map[string]bool {
	possible := make(map[string]bool)
	possibleOptions(group, true, actual, possible)
	return possible
}

// OptionsMatch reports whether the supplied options satisfy a transformer's
// option structure: every required option is present and nothing unknown
// was supplied.
func OptionsMatch(group OptionGroup, actual map[string]string) bool {
	possible := GatherPossibleOptions(group, actual)
	for name, required := range possible {
		if required {
			if _, ok := actual[name]; !ok {
				return false
			}
		}
	}
	for name := range actual {
		if _, ok := possible[name]; !ok {
			return false
		}
	}
	return true
}
