package caps

import (
	"encoding/base64"
	"strconv"
	"strings"
)

// Render produces the human-readable form used when displaying a received
// payload: one "value: {X}," fragment per entry, nested containers rendered
// recursively in place of X.
func Render(c *Container) string {
	var sb strings.Builder
	render(&sb, c)
	return sb.String()
}

func render(sb *strings.Builder, c *Container) {
	for _, v := range c.Values() {
		sb.WriteString("value: {")
		sb.WriteString(formatValue(v))
		sb.WriteString("},")
	}
}

func formatValue(v Value) string {
	switch v.typ {
	case TypeString:
		return v.str
	case TypeInt32:
		n, _ := v.Int32()
		return strconv.FormatInt(int64(n), 10)
	case TypeUInt32:
		n, _ := v.UInt32()
		return strconv.FormatUint(uint64(n), 10)
	case TypeFloat:
		f, _ := v.Float()
		return strconv.FormatFloat(float64(f), 'g', -1, 32)
	case TypeDouble:
		f, _ := v.Double()
		return strconv.FormatFloat(f, 'g', -1, 64)
	case TypeBool:
		return strconv.FormatBool(v.bits != 0)
	case TypeBinary:
		return base64.StdEncoding.EncodeToString(v.bin)
	case TypeObject:
		return Render(v.obj)
	default:
		return "<unrecognized type " + strconv.Itoa(int(v.tag)) + ">"
	}
}
