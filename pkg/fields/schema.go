package fields

import "fmt"

// Schema is an ordered list of fields. It is immutable and safe for
// concurrent use.
type Schema struct {
	fields []Field
}

// NewSchema builds a Schema from stored definitions in order. Any invalid
// definition aborts construction.
func NewSchema(defs []Definition) (Schema, error) {
	fs := make([]Field, 0, len(defs))
	for i, d := range defs {
		f, err := FromDefinition(d)
		if err != nil {
			return Schema{}, fmt.Errorf("field %d: %w", i, err)
		}
		fs = append(fs, f)
	}
	return Schema{fields: fs}, nil
}

// Fields returns a copy of the schema's fields.
func (s Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Len returns the number of fields.
func (s Schema) Len() int { return len(s.fields) }

// Lookup returns the last field named name.
func (s Schema) Lookup(name string) (Field, bool) {
	for i := len(s.fields) - 1; i >= 0; i-- {
		if s.fields[i].name == name {
			return s.fields[i], true
		}
	}
	return Field{}, false
}

// Rules maps each field name to its rule tokens. When names repeat the
// later field wins.
func (s Schema) Rules() map[string][]string {
	out := make(map[string][]string, len(s.fields))
	for _, f := range s.fields {
		out[f.name] = f.Rules()
	}
	return out
}

// Form returns one descriptor per field in schema order. Repeated names are
// kept.
func (s Schema) Form() []FormField {
	out := make([]FormField, 0, len(s.fields))
	for _, f := range s.fields {
		out = append(out, f.FormField())
	}
	return out
}
