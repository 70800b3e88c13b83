package fields

import (
	"fmt"
	"strconv"
	"strings"
)

// Definition is the raw, stored form of a field as it appears in a disk
// type's field list.
type Definition struct {
	Name     string  `json:"name" yaml:"name"`
	Type     string  `json:"type" yaml:"type"`
	Label    *string `json:"label,omitempty" yaml:"label,omitempty"`
	Required *bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Min      *int    `json:"min,omitempty" yaml:"min,omitempty"`
	Max      *int    `json:"max,omitempty" yaml:"max,omitempty"`
}

// Field is a validated, immutable field description.
type Field struct {
	name     string
	typ      Type
	label    string
	required bool
	min      *int
	max      *int
}

// FormField describes how a field is rendered by a client.
type FormField struct {
	Name   string         `json:"name"`
	Label  string         `json:"label"`
	Widget string         `json:"widget"`
	Rules  map[string]any `json:"rules"`
}

type options struct {
	label    *string
	required bool
	min      *int
	max      *int
}

// Option customizes a Field built by New.
type Option func(*options)

// WithLabel overrides the derived label.
func WithLabel(label string) Option {
	return func(o *options) { o.label = &label }
}

// WithRequired sets whether a value must be provided. Fields are required by default.
func WithRequired(required bool) Option {
	return func(o *options) { o.required = required }
}

// WithMin sets the lower bound.
func WithMin(n int) Option {
	return func(o *options) { o.min = &n }
}

// WithMax sets the upper bound.
func WithMax(n int) Option {
	return func(o *options) { o.max = &n }
}

// New builds a Field. The name is trimmed of surrounding whitespace and must
// not end up empty.
func New(name string, typ Type, opts ...Option) (Field, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Field{}, fmt.Errorf("%w: name cannot be empty.", ErrInvalidDefinition)
	}
	if !typ.Valid() {
		return Field{}, fmt.Errorf("%w: unknown field type %q", ErrInvalidDefinition, string(typ))
	}
	o := options{required: true}
	for _, opt := range opts {
		opt(&o)
	}
	f := Field{name: name, typ: typ, required: o.required, min: o.min, max: o.max}
	if o.label != nil {
		f.label = *o.label
	} else {
		f.label = Label(name)
	}
	return f, nil
}

// FromDefinition builds a Field from its stored form.
func FromDefinition(d Definition) (Field, error) {
	typ, err := ParseType(d.Type)
	if err != nil {
		return Field{}, err
	}
	var opts []Option
	if d.Label != nil {
		opts = append(opts, WithLabel(*d.Label))
	}
	if d.Required != nil {
		opts = append(opts, WithRequired(*d.Required))
	}
	if d.Min != nil {
		opts = append(opts, WithMin(*d.Min))
	}
	if d.Max != nil {
		opts = append(opts, WithMax(*d.Max))
	}
	return New(d.Name, typ, opts...)
}

func (f Field) Name() string   { return f.name }
func (f Field) Type() Type     { return f.typ }
func (f Field) Label() string  { return f.label }
func (f Field) Required() bool { return f.required }

// Min returns the lower bound and whether one is set.
func (f Field) Min() (int, bool) {
	if f.min == nil {
		return 0, false
	}
	return *f.min, true
}

// Max returns the upper bound and whether one is set.
func (f Field) Max() (int, bool) {
	if f.max == nil {
		return 0, false
	}
	return *f.max, true
}

// Definition returns the stored form of f with every attribute spelled out.
func (f Field) Definition() Definition {
	label := f.label
	required := f.required
	d := Definition{Name: f.name, Type: string(f.typ), Label: &label, Required: &required}
	if n, ok := f.Min(); ok {
		d.Min = &n
	}
	if n, ok := f.Max(); ok {
		d.Max = &n
	}
	return d
}

// Rules returns the validation rule tokens for the field, in order:
// presence, base type, then bounds.
func (f Field) Rules() []string {
	rules := make([]string, 0, 4)
	if f.required {
		rules = append(rules, "required")
	} else {
		rules = append(rules, "nullable")
	}
	rules = append(rules, f.typ.RuleType())
	if f.typ.HasLengthConstraints() {
		if n, ok := f.Min(); ok {
			rules = append(rules, "min:"+strconv.Itoa(n))
		}
		if n, ok := f.Max(); ok {
			rules = append(rules, "max:"+strconv.Itoa(n))
		}
	}
	return rules
}

// FormField returns the widget descriptor for the field.
func (f Field) FormField() FormField {
	widget := f.typ.Widget()
	rules := map[string]any{}
	if f.required {
		rules["required"] = true
	}
	minKey, maxKey := "minlength", "maxlength"
	if widget == "number" {
		minKey, maxKey = "min", "max"
	}
	if f.typ.HasLengthConstraints() {
		if n, ok := f.Min(); ok {
			rules[minKey] = n
		}
		if n, ok := f.Max(); ok {
			rules[maxKey] = n
		}
	}
	return FormField{Name: f.name, Label: f.label, Widget: widget, Rules: rules}
}
