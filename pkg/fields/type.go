package fields

import "fmt"

// Type is the declared kind of a field.
type Type string

const (
	TypeBoolean  Type = "boolean"
	TypeEmail    Type = "email"
	TypeInteger  Type = "integer"
	TypeKey      Type = "key"
	TypePassword Type = "password"
	TypeString   Type = "string"
	TypeText     Type = "text"
	TypeURL      Type = "url"
)

// Types lists every supported field type.
func Types() []Type {
	return []Type{TypeBoolean, TypeEmail, TypeInteger, TypeKey, TypePassword, TypeString, TypeText, TypeURL}
}

// ParseType resolves a type token. Matching is exact.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown field type %q", ErrInvalidDefinition, s)
	}
	return t, nil
}

// Valid reports whether t is one of the supported types.
func (t Type) Valid() bool {
	switch t {
	case TypeBoolean, TypeEmail, TypeInteger, TypeKey, TypePassword, TypeString, TypeText, TypeURL:
		return true
	}
	return false
}

// RuleType returns the base validation rule for the type.
func (t Type) RuleType() string {
	switch t {
	case TypeBoolean:
		return "boolean"
	case TypeEmail:
		return "email"
	case TypeInteger:
		return "integer"
	case TypeURL:
		return "url"
	default:
		return "string"
	}
}

// Widget returns the form widget used to render the type.
func (t Type) Widget() string {
	switch t {
	case TypeBoolean:
		return "checkbox"
	case TypeEmail:
		return "email"
	case TypeInteger:
		return "number"
	case TypePassword:
		return "password"
	case TypeText:
		return "textarea"
	case TypeURL:
		return "url"
	default:
		return "text"
	}
}

// HasLengthConstraints reports whether min/max bounds apply to the type.
func (t Type) HasLengthConstraints() bool {
	return t != TypeBoolean
}

// Secret reports whether values of this type should be stored encrypted.
func (t Type) Secret() bool {
	return t == TypeKey || t == TypePassword
}

func (t Type) String() string { return string(t) }
