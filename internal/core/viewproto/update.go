package viewproto

import (
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ActionUpdate is the only edit action the remote renderer understands.
const ActionUpdate = "update"

// UpdateEdit is a partial property change for one view, addressed by id.
// The zero value is an empty edit.
type UpdateEdit struct {
	TargetID string
	props    *orderedmap.OrderedMap[string, string]
}

// NewUpdateEdit returns an empty edit for the view with the given id.
func NewUpdateEdit(targetID string) *UpdateEdit {
	return &UpdateEdit{TargetID: targetID, props: orderedmap.New[string, string]()}
}

// Set records a property change. Re-setting a key keeps its original position.
func (e *UpdateEdit) Set(key, value string) *UpdateEdit {
	if e.props == nil {
		e.props = orderedmap.New[string, string]()
	}
	e.props.Set(key, value)
	return e
}

// SetField validates value against the field of kind before recording it.
func (e *UpdateEdit) SetField(kind Kind, name Field, value string) error {
	p, err := NewProps(kind)
	if err != nil {
		return err
	}
	if err := p.Set(name, value); err != nil {
		return err
	}
	f, _ := p.lookup(name)
	v, _ := p.Get(name)
	e.Set(f.wireKey, v)
	return nil
}

// Get returns a recorded property value.
func (e *UpdateEdit) Get(key string) (string, bool) {
	if e.props == nil {
		return "", false
	}
	return e.props.Get(key)
}

// Len reports the number of recorded properties.
func (e *UpdateEdit) Len() int {
	if e.props == nil {
		return 0
	}
	return e.props.Len()
}

func (e *UpdateEdit) wireObject() (*orderedmap.OrderedMap[string, any], error) {
	if e.TargetID == "" {
		return nil, ErrEmptyID
	}
	if _, err := ValidateIdentifier(e.TargetID); err != nil {
		return nil, withField(err, "id")
	}
	obj := orderedmap.New[string, any]()
	obj.Set("action", ActionUpdate)
	obj.Set("id", e.TargetID)
	props := e.props
	if props == nil {
		props = orderedmap.New[string, string]()
	}
	obj.Set("props", props)
	return obj, nil
}

// UpdateBatch is an ordered list of edits sent instead of a full tree.
type UpdateBatch struct {
	edits []*UpdateEdit
}

// NewUpdateBatch returns a batch holding edits.
func NewUpdateBatch(edits ...*UpdateEdit) *UpdateBatch {
	return &UpdateBatch{edits: edits}
}

// Add appends a new edit for targetID and returns it for chaining.
func (b *UpdateBatch) Add(targetID string) *UpdateEdit {
	e := NewUpdateEdit(targetID)
	b.edits = append(b.edits, e)
	return e
}

// Append appends existing edits.
func (b *UpdateBatch) Append(edits ...*UpdateEdit) {
	b.edits = append(b.edits, edits...)
}

// Len reports the number of edits.
func (b *UpdateBatch) Len() int { return len(b.edits) }

// Edits returns the edits in send order.
func (b *UpdateBatch) Edits() []*UpdateEdit { return b.edits }

// MarshalJSON encodes the batch as an array of edit objects.
func (b *UpdateBatch) MarshalJSON() ([]byte, error) {
	if len(b.edits) == 0 {
		return nil, ErrEmptyBatch
	}
	out := make([]*orderedmap.OrderedMap[string, any], 0, len(b.edits))
	for _, e := range b.edits {
		obj, err := e.wireObject()
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return json.Marshal(out)
}

// ToWire returns the wire text of the batch.
func (b *UpdateBatch) ToWire() (string, error) {
	data, err := b.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}
