package caps

// Container is an ordered sequence of values. Insertion order is wire order.
// A container is owned by one goroutine at a time.
type Container struct {
	values []Value
}

// New returns a container holding values in order.
func New(values ...Value) *Container {
	return &Container{values: append([]Value(nil), values...)}
}

// Append adds v at the end and returns the container for chaining.
func (c *Container) Append(v Value) *Container {
	c.values = append(c.values, v)
	return c
}

// AppendString appends a string value.
func (c *Container) AppendString(s string) *Container { return c.Append(String(s)) }

// AppendInt32 appends a signed 32-bit value.
func (c *Container) AppendInt32(v int32) *Container { return c.Append(Int32(v)) }

// AppendUInt32 appends an unsigned 32-bit value.
func (c *Container) AppendUInt32(v uint32) *Container { return c.Append(UInt32(v)) }

// AppendFloat appends a 32-bit float value.
func (c *Container) AppendFloat(v float32) *Container { return c.Append(Float(v)) }

// AppendDouble appends a 64-bit float value.
func (c *Container) AppendDouble(v float64) *Container { return c.Append(Double(v)) }

// AppendBool appends a boolean value.
func (c *Container) AppendBool(v bool) *Container { return c.Append(Bool(v)) }

// AppendBinary appends a copy of b.
func (c *Container) AppendBinary(b []byte) *Container { return c.Append(Binary(b)) }

// AppendObject appends a nested container.
func (c *Container) AppendObject(o *Container) *Container { return c.Append(Object(o)) }

// Len reports the number of entries.
func (c *Container) Len() int {
	if c == nil {
		return 0
	}
	return len(c.values)
}

// At returns the entry at index i.
func (c *Container) At(i int) (Value, error) {
	if i < 0 || i >= c.Len() {
		return Value{}, &IndexError{Index: i, Len: c.Len()}
	}
	return c.values[i], nil
}

// Values returns a copy of the entries.
func (c *Container) Values() []Value {
	if c == nil {
		return nil
	}
	return append([]Value(nil), c.values...)
}

// Equal reports whether both containers hold equal values in the same order.
func (c *Container) Equal(o *Container) bool {
	if c.Len() != o.Len() {
		return false
	}
	for i := range c.Len() {
		if !c.values[i].Equal(o.values[i]) {
			return false
		}
	}
	return true
}

// Problems collects the decode errors of unrecognized entries, descending
// into nested containers.
func (c *Container) Problems() []error {
	var out []error
	for _, v := range c.Values() {
		if err := v.Err(); err != nil {
			out = append(out, err)
		}
		if o, ok := v.Object(); ok {
			out = append(out, o.Problems()...)
		}
	}
	return out
}
