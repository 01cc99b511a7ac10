package viewproto

import (
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind names a remote view type.
type Kind string

const (
	KindLinearLayout   Kind = "LinearLayout"
	KindRelativeLayout Kind = "RelativeLayout"
	KindTextView       Kind = "TextView"
	KindImageView      Kind = "ImageView"
)

// Field is a property name as callers spell it.
type Field string

const (
	FieldID              Field = "id"
	FieldWidth           Field = "layout_width"
	FieldHeight          Field = "layout_height"
	FieldOrientation     Field = "orientation"
	FieldGravity         Field = "gravity"
	FieldLayoutGravity   Field = "layout_gravity"
	FieldPaddingTop      Field = "paddingTop"
	FieldPaddingBottom   Field = "paddingBottom"
	FieldPaddingStart    Field = "paddingStart"
	FieldPaddingEnd      Field = "paddingEnd"
	FieldBackgroundColor Field = "backgroundColor"
	FieldMarginStart     Field = "marginStart"
	FieldMarginEnd       Field = "marginEnd"
	FieldMarginTop       Field = "marginTop"
	FieldMarginBottom    Field = "marginBottom"
	FieldText            Field = "text"
	FieldTextColor       Field = "textColor"
	FieldTextSize        Field = "textSize"
	FieldTextStyle       Field = "textStyle"
	FieldName            Field = "name"
	FieldScaleType       Field = "scaleType"

	FieldToStartOf     Field = "layout_toStartOf"
	FieldToEndOf       Field = "layout_toEndOf"
	FieldAbove         Field = "layout_above"
	FieldBelow         Field = "layout_below"
	FieldAlignBaseline Field = "layout_alignBaseline"
	FieldAlignStart    Field = "layout_alignStart"
	FieldAlignEnd      Field = "layout_alignEnd"
	FieldAlignTop      Field = "layout_alignTop"
	FieldAlignBottom   Field = "layout_alignBottom"

	FieldAlignParentStart  Field = "layout_alignParentStart"
	FieldAlignParentEnd    Field = "layout_alignParentEnd"
	FieldAlignParentTop    Field = "layout_alignParentTop"
	FieldAlignParentBottom Field = "layout_alignParentBottom"
	FieldCenterInParent    Field = "layout_centerInParent"
	FieldCenterHorizontal  Field = "layout_centerHorizontal"
	FieldCenterVertical    Field = "layout_centerVertical"
)

type fieldDef struct {
	name      Field
	wireKey   string
	validate  func(string) (string, error)
	mandatory bool
	def       string
}

func required(name Field, def string, validate func(string) (string, error)) fieldDef {
	return fieldDef{name: name, wireKey: string(name), validate: validate, mandatory: true, def: def}
}

func optional(name Field, validate func(string) (string, error)) fieldDef {
	return fieldDef{name: name, wireKey: string(name), validate: validate}
}

func renamed(d fieldDef, wireKey string) fieldDef {
	d.wireKey = wireKey
	return d
}

func box(width, height string) []fieldDef {
	return []fieldDef{
		required(FieldID, "", ValidateIdentifier),
		required(FieldWidth, width, ValidateDimension),
		required(FieldHeight, height, ValidateDimension),
	}
}

func paddings() []fieldDef {
	return []fieldDef{
		optional(FieldPaddingTop, ValidateLength),
		optional(FieldPaddingBottom, ValidateLength),
		renamed(optional(FieldPaddingStart, ValidateLength), "paddingLeft"),
		renamed(optional(FieldPaddingEnd, ValidateLength), "paddingRight"),
	}
}

// Text views list the horizontal paddings first.
func textPaddings() []fieldDef {
	p := paddings()
	return []fieldDef{p[2], p[3], p[0], p[1]}
}

func margins() []fieldDef {
	return []fieldDef{
		optional(FieldMarginStart, ValidateLength),
		optional(FieldMarginEnd, ValidateLength),
		optional(FieldMarginTop, ValidateLength),
		optional(FieldMarginBottom, ValidateLength),
	}
}

func concat(groups ...[]fieldDef) []fieldDef {
	var out []fieldDef
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// Field tables list mandatory fields first; serialization follows table order.
var schemas = map[Kind][]fieldDef{
	KindLinearLayout: concat(
		box(MatchParent, MatchParent),
		[]fieldDef{
			required(FieldOrientation, "vertical", enumOf(Orientations)),
			optional(FieldGravity, enumOf(Gravities)),
			optional(FieldLayoutGravity, enumOf(Gravities)),
		},
		paddings(),
		[]fieldDef{optional(FieldBackgroundColor, GreenOnly)},
		margins(),
	),
	KindRelativeLayout: concat(
		box(MatchParent, MatchParent),
		paddings(),
		[]fieldDef{optional(FieldBackgroundColor, GreenOnly)},
		margins(),
		[]fieldDef{
			optional(FieldToStartOf, ValidateReference),
			optional(FieldToEndOf, ValidateReference),
			optional(FieldAbove, ValidateReference),
			optional(FieldBelow, ValidateReference),
			optional(FieldAlignBaseline, ValidateReference),
			optional(FieldAlignStart, ValidateReference),
			optional(FieldAlignEnd, ValidateReference),
			optional(FieldAlignTop, ValidateReference),
			optional(FieldAlignBottom, ValidateReference),
			optional(FieldAlignParentStart, ValidateBoolString),
			optional(FieldAlignParentEnd, ValidateBoolString),
			optional(FieldAlignParentTop, ValidateBoolString),
			optional(FieldAlignParentBottom, ValidateBoolString),
			optional(FieldCenterInParent, ValidateBoolString),
			optional(FieldCenterHorizontal, ValidateBoolString),
			optional(FieldCenterVertical, ValidateBoolString),
		},
	),
	KindTextView: concat(
		box(MatchParent, WrapContent),
		[]fieldDef{
			required(FieldText, "NONE", anyText),
			optional(FieldTextColor, GreenOnly),
			optional(FieldTextSize, ValidateTextSize),
			optional(FieldGravity, enumOf(Gravities)),
			optional(FieldTextStyle, enumOf(TextStyles)),
		},
		textPaddings(),
		margins(),
	),
	KindImageView: concat(
		box(MatchParent, WrapContent),
		[]fieldDef{
			required(FieldName, "NONE", anyText),
			required(FieldScaleType, "center", enumOf(ScaleTypes)),
		},
	),
}

// Props is the validated property set of one view. Every mutation is
// validated before it is stored, so a Props never holds an invalid value.
type Props struct {
	kind   Kind
	fields []fieldDef
	values map[Field]string
}

// NewProps returns the default property set for kind.
func NewProps(kind Kind) (*Props, error) {
	fields, ok := schemas[kind]
	if !ok {
		return nil, fmt.Errorf("viewproto: unknown view type %q", kind)
	}
	p := &Props{kind: kind, fields: fields, values: make(map[Field]string, len(fields))}
	for _, f := range fields {
		if f.mandatory {
			p.values[f.name] = f.def
		}
	}
	return p, nil
}

func mustProps(kind Kind) *Props {
	p, err := NewProps(kind)
	if err != nil {
		panic(err)
	}
	return p
}

// LinearLayout returns default container props.
func LinearLayout() *Props { return mustProps(KindLinearLayout) }

// RelativeLayout returns default relative layout props.
func RelativeLayout() *Props { return mustProps(KindRelativeLayout) }

// TextView returns default text props.
func TextView() *Props { return mustProps(KindTextView) }

// ImageView returns default image props.
func ImageView() *Props { return mustProps(KindImageView) }

// BuildProps validates every value first and only then constructs the
// property set. Values are applied in field-table order.
func BuildProps(kind Kind, values map[string]string) (*Props, error) {
	p, err := NewProps(kind)
	if err != nil {
		return nil, err
	}
	for key := range values {
		if _, ok := p.lookup(Field(key)); !ok {
			return nil, &ValidationError{Field: key, Value: values[key], Err: ErrUnknownField}
		}
	}
	for _, f := range p.fields {
		v, ok := values[string(f.name)]
		if !ok {
			continue
		}
		if err := p.Set(f.name, v); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Kind reports the view type the props belong to.
func (p *Props) Kind() Kind { return p.kind }

func (p *Props) lookup(name Field) (fieldDef, bool) {
	for _, f := range p.fields {
		if f.name == name {
			return f, true
		}
	}
	return fieldDef{}, false
}

// Set validates and stores a field value. On error the previous value is kept.
func (p *Props) Set(name Field, value string) error {
	f, ok := p.lookup(name)
	if !ok {
		return &ValidationError{Field: string(name), Value: value, Err: ErrUnknownField}
	}
	v, err := f.validate(value)
	if err != nil {
		return withField(err, string(name))
	}
	p.values[name] = v
	return nil
}

// Unset clears an optional field.
func (p *Props) Unset(name Field) error {
	f, ok := p.lookup(name)
	if !ok {
		return &ValidationError{Field: string(name), Err: ErrUnknownField}
	}
	if f.mandatory {
		return &ValidationError{Field: string(name), Err: ErrMandatoryField}
	}
	delete(p.values, name)
	return nil
}

// Get returns the stored value of a field.
func (p *Props) Get(name Field) (string, bool) {
	v, ok := p.values[name]
	return v, ok
}

// ID returns the view id.
func (p *Props) ID() string { return p.values[FieldID] }

// Clone returns an independent copy.
func (p *Props) Clone() *Props {
	cp := &Props{kind: p.kind, fields: p.fields, values: make(map[Field]string, len(p.values))}
	for k, v := range p.values {
		cp.values[k] = v
	}
	return cp
}

// WireObject returns the canonical ordered object: mandatory fields, then
// every set optional field in declared order.
func (p *Props) WireObject() (*orderedmap.OrderedMap[string, string], error) {
	if p.values[FieldID] == "" {
		return nil, ErrEmptyID
	}
	obj := orderedmap.New[string, string]()
	for _, f := range p.fields {
		v, ok := p.values[f.name]
		if !ok {
			continue
		}
		obj.Set(f.wireKey, v)
	}
	return obj, nil
}

// MarshalJSON encodes the wire object.
func (p *Props) MarshalJSON() ([]byte, error) {
	obj, err := p.WireObject()
	if err != nil {
		return nil, err
	}
	return json.Marshal(obj)
}

// ToWire returns the wire text of the props.
func (p *Props) ToWire() (string, error) {
	data, err := p.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}
