package caps

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfBounds      = errors.New("caps: index out of bounds")
	ErrUnrecognizedType = errors.New("caps: unrecognized value type")
	ErrMalformed        = errors.New("caps: malformed payload")
	ErrTooDeep          = errors.New("caps: nesting too deep")
	ErrTooLarge         = errors.New("caps: payload too large")
	ErrUnsupportedJSON  = errors.New("caps: unsupported JSON value")
	ErrInvalidValue     = errors.New("caps: invalid value")
)

// IndexError reports access past the end of a container.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("caps: index %d out of bounds (len %d)", e.Index, e.Len)
}

func (e *IndexError) Is(target error) bool { return target == ErrOutOfBounds }

// DecodeError describes a single entry that could not be interpreted.
// It never aborts decoding of sibling entries.
type DecodeError struct {
	Tag int32
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("caps: entry with tag %d: %v", e.Tag, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
