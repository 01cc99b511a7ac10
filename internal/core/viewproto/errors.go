package viewproto

import (
	"errors"
	"fmt"
)

// Validation failures. A *ValidationError wraps exactly one of these.
var (
	ErrInvalidDimension  = errors.New("invalid dimension")
	ErrInvalidLength     = errors.New("invalid length")
	ErrInvalidEnum       = errors.New("invalid enum value")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrInvalidBool       = errors.New("invalid boolean")
	ErrInvalidColor      = errors.New("invalid color")
	ErrInvalidTextSize   = errors.New("invalid text size")
	ErrUnknownField      = errors.New("unknown field")
	ErrMandatoryField    = errors.New("mandatory field cannot be unset")
)

// Serialization preconditions.
var (
	ErrEmptyID    = errors.New("viewproto: id can not be empty")
	ErrEmptyKind  = errors.New("viewproto: node type is empty")
	ErrEmptyBatch = errors.New("viewproto: update batch is empty")
	ErrTooDeep    = errors.New("viewproto: view tree too deep")
	ErrCycle      = errors.New("viewproto: view tree contains a cycle")
	ErrNilProps   = errors.New("viewproto: node props are nil")
)

// ValidationError reports a rejected property value.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("viewproto: %v %q", e.Err, e.Value)
	}
	return fmt.Sprintf("viewproto: %s: %v %q", e.Field, e.Err, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(err error, value string) error {
	return &ValidationError{Value: value, Err: err}
}

// withField stamps the field name on a validation error produced by a
// field-agnostic validator.
func withField(err error, field string) error {
	var ve *ValidationError
	if errors.As(err, &ve) && ve.Field == "" {
		return &ValidationError{Field: field, Value: ve.Value, Err: ve.Err}
	}
	return err
}
