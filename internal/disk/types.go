package disk

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/faciam-dev/gcdisk/pkg/fields"
)

// typeDoc is the file form of a disk type.
type typeDoc struct {
	Code   string              `yaml:"code"`
	Name   string              `yaml:"name"`
	Driver string              `yaml:"driver"`
	Fields []fields.Definition `yaml:"fields"`
}

// ParseTypes decodes a YAML list of disk types. Every type must have a code
// and a driver and its fields must form a valid schema, otherwise nothing is
// returned.
func ParseTypes(b []byte) ([]DiskType, error) {
	var docs []typeDoc
	if err := yaml.Unmarshal(b, &docs); err != nil {
		return nil, fmt.Errorf("parse disk types: %w", err)
	}
	seen := map[string]bool{}
	out := make([]DiskType, 0, len(docs))
	for i, d := range docs {
		code := strings.ToLower(strings.TrimSpace(d.Code))
		if code == "" {
			return nil, fmt.Errorf("disk type %d: code is required", i)
		}
		if seen[code] {
			return nil, fmt.Errorf("disk type %s: duplicate code", code)
		}
		seen[code] = true
		if d.Driver == "" {
			return nil, fmt.Errorf("disk type %s: driver is required", code)
		}
		if _, err := fields.NewSchema(d.Fields); err != nil {
			return nil, fmt.Errorf("disk type %s: %w", code, err)
		}
		name := d.Name
		if name == "" {
			name = fields.Label(code)
		}
		defs := d.Fields
		if defs == nil {
			defs = []fields.Definition{}
		}
		out = append(out, DiskType{Code: code, Name: name, Driver: d.Driver, Fields: defs})
	}
	return out, nil
}
