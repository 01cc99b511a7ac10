// Package caps implements the typed value container exchanged with the
// glasses over custom command channels: an ordered, positional list of
// primitive or nested values, each carrying its own type tag on the wire.
package caps

import (
	"bytes"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Type is the wire discriminator of a value.
type Type uint8

const (
	TypeUnrecognized Type = 0
	TypeString       Type = 1
	TypeInt32        Type = 2
	TypeUInt32       Type = 3
	TypeFloat        Type = 4
	TypeDouble       Type = 5
	TypeBool         Type = 6
	TypeBinary       Type = 7
	TypeObject       Type = 8
)

var typeNames = map[Type]string{
	TypeUnrecognized: "unrecognized",
	TypeString:       "string",
	TypeInt32:        "int32",
	TypeUInt32:       "uint32",
	TypeFloat:        "float",
	TypeDouble:       "double",
	TypeBool:         "bool",
	TypeBinary:       "binary",
	TypeObject:       "object",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// ParseType maps a type name back to its discriminator.
func ParseType(name string) (Type, bool) {
	for t, n := range typeNames {
		if n == name && t != TypeUnrecognized {
			return t, true
		}
	}
	return TypeUnrecognized, false
}

// Value is one entry of a container.
type Value struct {
	typ  Type
	str  string
	bits uint64
	bin  []byte
	obj  *Container

	// set for TypeUnrecognized
	tag  int32
	wire protowire.Type
}

// String returns a string value.
func String(s string) Value { return Value{typ: TypeString, str: s} }

// Int32 returns a signed 32-bit value.
func Int32(v int32) Value { return Value{typ: TypeInt32, bits: uint64(uint32(v))} }

// UInt32 returns an unsigned 32-bit value.
func UInt32(v uint32) Value { return Value{typ: TypeUInt32, bits: uint64(v)} }

// Float returns a 32-bit float value.
func Float(v float32) Value { return Value{typ: TypeFloat, bits: uint64(math.Float32bits(v))} }

// Double returns a 64-bit float value.
func Double(v float64) Value { return Value{typ: TypeDouble, bits: math.Float64bits(v)} }

// Bool returns a boolean value.
func Bool(v bool) Value {
	var b uint64
	if v {
		b = 1
	}
	return Value{typ: TypeBool, bits: b}
}

// Binary returns a blob value. The bytes are copied.
func Binary(b []byte) Value {
	return Value{typ: TypeBinary, bin: bytes.Clone(b)}
}

// Object returns a nested container value.
func Object(c *Container) Value {
	if c == nil {
		c = New()
	}
	return Value{typ: TypeObject, obj: c}
}

func unrecognized(tag int32, wire protowire.Type, raw []byte) Value {
	return Value{typ: TypeUnrecognized, tag: tag, wire: wire, bin: bytes.Clone(raw)}
}

// Tag returns the raw wire discriminator of an unrecognized value.
func (v Value) Tag() int32 {
	if v.typ == TypeUnrecognized {
		return v.tag
	}
	return int32(v.typ)
}

// Type reports the value's discriminator.
func (v Value) Type() Type { return v.typ }

// Text returns the string payload.
func (v Value) Text() (string, bool) { return v.str, v.typ == TypeString }

// Int32 returns the signed integer payload.
func (v Value) Int32() (int32, bool) { return int32(uint32(v.bits)), v.typ == TypeInt32 }

// UInt32 returns the unsigned integer payload.
func (v Value) UInt32() (uint32, bool) { return uint32(v.bits), v.typ == TypeUInt32 }

// Float returns the float payload.
func (v Value) Float() (float32, bool) {
	return math.Float32frombits(uint32(v.bits)), v.typ == TypeFloat
}

// Double returns the double payload.
func (v Value) Double() (float64, bool) { return math.Float64frombits(v.bits), v.typ == TypeDouble }

// Bool returns the boolean payload.
func (v Value) Bool() (bool, bool) { return v.bits != 0, v.typ == TypeBool }

// Binary returns the blob payload. For unrecognized values it returns the
// raw field bytes as received.
func (v Value) Binary() ([]byte, bool) {
	return v.bin, v.typ == TypeBinary || v.typ == TypeUnrecognized
}

// Object returns the nested container.
func (v Value) Object() (*Container, bool) { return v.obj, v.typ == TypeObject }

// Err reports why a decoded value could not be interpreted, or nil.
func (v Value) Err() error {
	if v.typ != TypeUnrecognized {
		return nil
	}
	return &DecodeError{Tag: v.tag, Err: ErrUnrecognizedType}
}

// Equal compares type and payload. Floats compare by bit pattern so NaN
// payloads survive round-trip checks.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case TypeString:
		return v.str == o.str
	case TypeBinary:
		return bytes.Equal(v.bin, o.bin)
	case TypeObject:
		return v.obj.Equal(o.obj)
	case TypeUnrecognized:
		return v.tag == o.tag && v.wire == o.wire && bytes.Equal(v.bin, o.bin)
	default:
		return v.bits == o.bits
	}
}
