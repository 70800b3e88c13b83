package fields

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// DecodeJSON parses a JSON array of field definitions. Empty input and
// null decode to an empty list.
func DecodeJSON(b []byte) ([]Definition, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return []Definition{}, nil
	}
	var defs []Definition
	if err := json.Unmarshal(b, &defs); err != nil {
		return nil, fmt.Errorf("decode fields json: %w", err)
	}
	return defs, nil
}

// DecodeYAML parses a YAML sequence of field definitions.
func DecodeYAML(b []byte) ([]Definition, error) {
	var defs []Definition
	if err := yaml.Unmarshal(b, &defs); err != nil {
		return nil, fmt.Errorf("decode fields yaml: %w", err)
	}
	if defs == nil {
		defs = []Definition{}
	}
	return defs, nil
}

// EncodeJSON renders definitions for storage. A nil list encodes as [].
func EncodeJSON(defs []Definition) ([]byte, error) {
	if defs == nil {
		defs = []Definition{}
	}
	return json.Marshal(defs)
}

// ParseJSON decodes and builds a Schema in one step.
func ParseJSON(b []byte) (Schema, error) {
	defs, err := DecodeJSON(b)
	if err != nil {
		return Schema{}, err
	}
	return NewSchema(defs)
}

// ParseYAML decodes and builds a Schema in one step.
func ParseYAML(b []byte) (Schema, error) {
	defs, err := DecodeYAML(b)
	if err != nil {
		return Schema{}, err
	}
	return NewSchema(defs)
}
