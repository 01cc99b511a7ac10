package caps

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// jsonValue is the typed JSON form of one entry, used by the HTTP and MQTT
// surfaces: {"type":"int32","value":42}.
type jsonValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
	Tag   int32           `json:"tag,omitempty"`
}

// MarshalJSON renders the container as a typed JSON array.
func (c *Container) MarshalJSON() ([]byte, error) {
	out := make([]jsonValue, 0, c.Len())
	for _, v := range c.Values() {
		raw, err := valueJSON(v)
		if err != nil {
			return nil, err
		}
		jv := jsonValue{Type: v.typ.String(), Value: raw}
		if v.typ == TypeUnrecognized {
			jv.Tag = v.tag
		}
		out = append(out, jv)
	}
	return json.Marshal(out)
}

func valueJSON(v Value) (json.RawMessage, error) {
	switch v.typ {
	case TypeString:
		return json.Marshal(v.str)
	case TypeInt32:
		n, _ := v.Int32()
		return json.Marshal(n)
	case TypeUInt32:
		n, _ := v.UInt32()
		return json.Marshal(n)
	case TypeFloat:
		f, _ := v.Float()
		return floatJSON(float64(f), 32)
	case TypeDouble:
		f, _ := v.Double()
		return floatJSON(f, 64)
	case TypeBool:
		return json.Marshal(v.bits != 0)
	case TypeBinary, TypeUnrecognized:
		return json.Marshal(base64.StdEncoding.EncodeToString(v.bin))
	case TypeObject:
		return v.obj.MarshalJSON()
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedJSON, v.typ)
}

// Non-finite floats travel as strings since JSON numbers cannot carry them.
func floatJSON(f float64, bitSize int) (json.RawMessage, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return json.Marshal(strconv.FormatFloat(f, 'g', -1, bitSize))
	}
	return json.RawMessage(strconv.FormatFloat(f, 'g', -1, bitSize)), nil
}

// UnmarshalJSON parses the typed JSON array form.
func (c *Container) UnmarshalJSON(b []byte) error {
	d, err := parseJSON(b, 0)
	if err != nil {
		return err
	}
	c.values = d.values
	return nil
}

func parseJSON(b []byte, depth int) (*Container, error) {
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}
	var in []jsonValue
	if err := json.Unmarshal(b, &in); err != nil {
		return nil, fmt.Errorf("caps: parse json: %w", err)
	}
	c := New()
	for i, jv := range in {
		v, err := parseJSONValue(jv, depth)
		if err != nil {
			return nil, fmt.Errorf("caps: entry %d: %w", i, err)
		}
		c.Append(v)
	}
	return c, nil
}

func parseJSONValue(jv jsonValue, depth int) (Value, error) {
	t, ok := ParseType(jv.Type)
	if !ok {
		return Value{}, fmt.Errorf("%w: type %q", ErrUnsupportedJSON, jv.Type)
	}
	switch t {
	case TypeString:
		var s string
		if err := json.Unmarshal(jv.Value, &s); err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrUnsupportedJSON, err)
		}
		return String(s), nil
	case TypeInt32:
		n, err := strconv.ParseInt(string(jv.Value), 10, 32)
		if err != nil {
			return Value{}, fmt.Errorf("%w: int32 %s", ErrUnsupportedJSON, jv.Value)
		}
		return Int32(int32(n)), nil
	case TypeUInt32:
		n, err := strconv.ParseUint(string(jv.Value), 10, 32)
		if err != nil {
			return Value{}, fmt.Errorf("%w: uint32 %s", ErrUnsupportedJSON, jv.Value)
		}
		return UInt32(uint32(n)), nil
	case TypeFloat:
		f, err := parseFloatJSON(jv.Value, 32)
		if err != nil {
			return Value{}, err
		}
		return Float(float32(f)), nil
	case TypeDouble:
		f, err := parseFloatJSON(jv.Value, 64)
		if err != nil {
			return Value{}, err
		}
		return Double(f), nil
	case TypeBool:
		var b bool
		if err := json.Unmarshal(jv.Value, &b); err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrUnsupportedJSON, err)
		}
		return Bool(b), nil
	case TypeBinary:
		var s string
		if err := json.Unmarshal(jv.Value, &s); err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrUnsupportedJSON, err)
		}
		p, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Value{}, fmt.Errorf("%w: binary: %v", ErrUnsupportedJSON, err)
		}
		return Binary(p), nil
	case TypeObject:
		nested, err := parseJSON(jv.Value, depth+1)
		if err != nil {
			return Value{}, err
		}
		return Object(nested), nil
	}
	return Value{}, fmt.Errorf("%w: type %q", ErrUnsupportedJSON, jv.Type)
}

func parseFloatJSON(raw json.RawMessage, bitSize int) (float64, error) {
	s := string(raw)
	var quoted string
	if json.Unmarshal(raw, &quoted) == nil {
		s = quoted
	}
	f, err := strconv.ParseFloat(s, bitSize)
	if err != nil {
		return 0, fmt.Errorf("%w: float %s", ErrUnsupportedJSON, raw)
	}
	return f, nil
}
