// Package catalog merges transform capability declarations from engines and
// pipeline files into one catalog and selects the transformer to use for a
// request.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseJSON decodes a declaration in the engine wire format.
func ParseJSON(data []byte) (TransformConfig, error) {
	var cfg TransformConfig
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&cfg); err != nil {
		return TransformConfig{}, fmt.Errorf("decoding transform config: %w", err)
	}
	return cfg, nil
}

// ParseYAML decodes a declaration written as YAML using the same field names
// as the JSON wire format.
func ParseYAML(data []byte) (TransformConfig, error) {
	var cfg TransformConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return TransformConfig{}, fmt.Errorf("decoding transform config: %w", err)
	}
	return cfg, nil
}

// ParseFile reads a declaration from disk, choosing the decoder by extension.
func ParseFile(path string) (TransformConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TransformConfig{}, fmt.Errorf("reading %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseJSON(data)
	}
}

// MarshalJSON encodes a configuration in the engine wire format with empty
// option and transformer lists rather than null.
func (c TransformConfig) MarshalJSON() ([]byte, error) {
	type plain TransformConfig
	p := plain(c)
	if p.TransformOptions == nil {
		p.TransformOptions = map[string]Options{}
	}
	if p.Transformers == nil {
		p.Transformers = []Transformer{}
	}
	return json.Marshal(p)
}
