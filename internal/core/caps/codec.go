package caps

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	// MaxDepth bounds container nesting on encode and decode.
	MaxDepth = 32
	// MaxPayload bounds the size of a payload accepted by Decode.
	MaxPayload = 16 << 20
)

// Each entry is one protobuf-wire field whose number is the value's Type.
var wireTypes = map[Type]protowire.Type{
	TypeString: protowire.BytesType,
	TypeInt32:  protowire.Fixed32Type,
	TypeUInt32: protowire.Fixed32Type,
	TypeFloat:  protowire.Fixed32Type,
	TypeDouble: protowire.Fixed64Type,
	TypeBool:   protowire.VarintType,
	TypeBinary: protowire.BytesType,
	TypeObject: protowire.BytesType,
}

// Encode flattens c into its wire form.
func Encode(c *Container) ([]byte, error) {
	return c.appendTo(nil, 0)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (c *Container) MarshalBinary() ([]byte, error) {
	return Encode(c)
}

func (c *Container) appendTo(b []byte, depth int) ([]byte, error) {
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}
	for i, v := range c.Values() {
		if v.typ == TypeUnrecognized {
			if !protowire.Number(v.tag).IsValid() {
				return nil, fmt.Errorf("%w: entry %d has no wire tag", ErrInvalidValue, i)
			}
			b = protowire.AppendTag(b, protowire.Number(v.tag), v.wire)
			b = append(b, v.bin...)
			continue
		}
		num := protowire.Number(v.typ)
		b = protowire.AppendTag(b, num, wireTypes[v.typ])
		switch v.typ {
		case TypeString:
			b = protowire.AppendString(b, v.str)
		case TypeBinary:
			b = protowire.AppendBytes(b, v.bin)
		case TypeInt32, TypeUInt32, TypeFloat:
			b = protowire.AppendFixed32(b, uint32(v.bits))
		case TypeDouble:
			b = protowire.AppendFixed64(b, v.bits)
		case TypeBool:
			b = protowire.AppendVarint(b, v.bits)
		case TypeObject:
			nested, err := v.obj.appendTo(nil, depth+1)
			if err != nil {
				return nil, err
			}
			b = protowire.AppendBytes(b, nested)
		default:
			return nil, fmt.Errorf("caps: cannot encode %s", v.typ)
		}
	}
	return b, nil
}

// Decode parses a wire payload. Entries with an unknown discriminator, or a
// known discriminator carried with the wrong wire type, decode as
// unrecognized values and decoding continues with the next entry.
func Decode(b []byte) (*Container, error) {
	if len(b) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(b))
	}
	return decode(b, 0)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (c *Container) UnmarshalBinary(b []byte) error {
	d, err := Decode(b)
	if err != nil {
		return err
	}
	c.values = d.values
	return nil
}

func decode(b []byte, depth int) (*Container, error) {
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}
	c := New()
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: entry %d tag: %v", ErrMalformed, c.Len(), protowire.ParseError(n))
		}
		b = b[n:]
		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return nil, fmt.Errorf("%w: entry %d value: %v", ErrMalformed, c.Len(), protowire.ParseError(m))
		}
		v, err := decodeValue(num, typ, b[:m], depth)
		if err != nil {
			return nil, err
		}
		c.Append(v)
		b = b[m:]
	}
	return c, nil
}

func decodeValue(num protowire.Number, typ protowire.Type, field []byte, depth int) (Value, error) {
	t := Type(0)
	if num > 0 && num <= protowire.Number(TypeObject) {
		t = Type(num)
	}
	if want, ok := wireTypes[t]; !ok || want != typ {
		return unrecognized(int32(num), typ, field), nil
	}

	switch t {
	case TypeString:
		s, _ := protowire.ConsumeBytes(field)
		return String(string(s)), nil
	case TypeBinary:
		p, _ := protowire.ConsumeBytes(field)
		return Binary(p), nil
	case TypeInt32:
		v, _ := protowire.ConsumeFixed32(field)
		return Int32(int32(v)), nil
	case TypeUInt32:
		v, _ := protowire.ConsumeFixed32(field)
		return UInt32(v), nil
	case TypeFloat:
		v, _ := protowire.ConsumeFixed32(field)
		return Value{typ: TypeFloat, bits: uint64(v)}, nil
	case TypeDouble:
		v, _ := protowire.ConsumeFixed64(field)
		return Value{typ: TypeDouble, bits: v}, nil
	case TypeBool:
		v, _ := protowire.ConsumeVarint(field)
		return Bool(v != 0), nil
	case TypeObject:
		p, _ := protowire.ConsumeBytes(field)
		nested, err := decode(p, depth+1)
		if err != nil {
			return Value{}, err
		}
		return Object(nested), nil
	}
	return unrecognized(int32(num), typ, field), nil
}
