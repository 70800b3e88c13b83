package fields

import "errors"

// ErrInvalidDefinition is returned when a field definition cannot be turned into a Field.
var ErrInvalidDefinition = errors.New("invalid field definition")
