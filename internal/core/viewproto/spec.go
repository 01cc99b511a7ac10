package viewproto

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// NodeSpec is the declarative, decodable description of a view tree.
// Build validates every property and returns the wire model.
type NodeSpec struct {
	Type     Kind              `json:"type" yaml:"type"`
	Props    map[string]string `json:"props" yaml:"props"`
	Children []NodeSpec        `json:"children,omitempty" yaml:"children,omitempty"`
}

// Build converts the spec into a Node.
func (s NodeSpec) Build() (*Node, error) {
	return s.build(0)
}

func (s NodeSpec) build(depth int) (*Node, error) {
	if depth >= MaxTreeDepth {
		return nil, ErrTooDeep
	}
	if s.Type == "" {
		return nil, ErrEmptyKind
	}
	props, err := BuildProps(s.Type, s.Props)
	if err != nil {
		return nil, err
	}
	var children []*Node
	for i, cs := range s.Children {
		c, err := cs.build(depth + 1)
		if err != nil {
			return nil, fmt.Errorf("child %d of %s: %w", i, s.Type, err)
		}
		children = append(children, c)
	}
	return NewNode(props, children...)
}

// EditSpec is the decodable form of one update edit. Props keeps the
// document order of its keys.
type EditSpec struct {
	ID    string                                 `json:"id"`
	Props *orderedmap.OrderedMap[string, string] `json:"props"`
}

// BuildBatch converts edit specs into an update batch.
func BuildBatch(specs []EditSpec) (*UpdateBatch, error) {
	b := NewUpdateBatch()
	for _, s := range specs {
		if s.ID == "" {
			return nil, ErrEmptyID
		}
		if _, err := ValidateReference(s.ID); err != nil {
			return nil, withField(err, "id")
		}
		e := b.Add(s.ID)
		if s.Props == nil {
			continue
		}
		for pair := s.Props.Oldest(); pair != nil; pair = pair.Next() {
			e.Set(pair.Key, pair.Value)
		}
	}
	if b.Len() == 0 {
		return nil, ErrEmptyBatch
	}
	return b, nil
}
