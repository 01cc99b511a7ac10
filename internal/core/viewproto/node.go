package viewproto

import (
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// MaxTreeDepth bounds the nesting of a view tree.
const MaxTreeDepth = 64

// Node is one element of a remote view tree. Props holds the serialized
// property object and may be replaced between sends to reflect state changes.
type Node struct {
	Kind     Kind
	Props    json.RawMessage
	Children []*Node
}

// NewNode serializes props and wraps them in a node of the props' kind.
func NewNode(props *Props, children ...*Node) (*Node, error) {
	if props == nil {
		return nil, ErrNilProps
	}
	n := &Node{Kind: props.Kind(), Children: children}
	if err := n.SetProps(props); err != nil {
		return nil, err
	}
	return n, nil
}

// SetProps replaces the node's serialized props.
func (n *Node) SetProps(props *Props) error {
	data, err := props.MarshalJSON()
	if err != nil {
		return fmt.Errorf("viewproto: %s props: %w", props.Kind(), err)
	}
	n.Props = data
	return nil
}

// Clone returns a deep copy of the subtree. Subtrees nested deeper than
// MaxTreeDepth are shared with the original.
func (n *Node) Clone() *Node {
	return n.clone(0)
}

func (n *Node) clone(depth int) *Node {
	if n == nil || depth >= MaxTreeDepth {
		return n
	}
	cp := &Node{Kind: n.Kind}
	if n.Props != nil {
		cp.Props = append(json.RawMessage(nil), n.Props...)
	}
	if n.Children != nil {
		cp.Children = make([]*Node, len(n.Children))
		for i, c := range n.Children {
			cp.Children[i] = c.clone(depth + 1)
		}
	}
	return cp
}

// Child returns the i-th child or nil.
func (n *Node) Child(i int) *Node {
	if i < 0 || i >= len(n.Children) {
		return nil
	}
	return n.Children[i]
}

// Find returns the first node in the tree whose props carry the given id.
func (n *Node) Find(id string) *Node {
	var probe struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(n.Props, &probe) == nil && probe.ID == id {
		return n
	}
	for _, c := range n.Children {
		if found := c.Find(id); found != nil {
			return found
		}
	}
	return nil
}

// WireObject builds the ordered object for the subtree rooted at n.
// An empty children list emits no children key.
func (n *Node) WireObject() (*orderedmap.OrderedMap[string, any], error) {
	return n.wireObject(0, map[*Node]bool{})
}

func (n *Node) wireObject(depth int, path map[*Node]bool) (*orderedmap.OrderedMap[string, any], error) {
	if depth >= MaxTreeDepth {
		return nil, ErrTooDeep
	}
	if path[n] {
		return nil, ErrCycle
	}
	if n.Kind == "" {
		return nil, ErrEmptyKind
	}
	props := n.Props
	if len(props) == 0 {
		props = json.RawMessage("{}")
	}

	obj := orderedmap.New[string, any]()
	obj.Set("type", string(n.Kind))
	obj.Set("props", props)

	if len(n.Children) > 0 {
		path[n] = true
		defer delete(path, n)

		children := make([]*orderedmap.OrderedMap[string, any], 0, len(n.Children))
		for _, c := range n.Children {
			if c == nil {
				return nil, fmt.Errorf("viewproto: nil child of %s", n.Kind)
			}
			co, err := c.wireObject(depth+1, path)
			if err != nil {
				return nil, err
			}
			children = append(children, co)
		}
		obj.Set("children", children)
	}
	return obj, nil
}

// MarshalJSON encodes the subtree.
func (n *Node) MarshalJSON() ([]byte, error) {
	obj, err := n.WireObject()
	if err != nil {
		return nil, err
	}
	return json.Marshal(obj)
}

// ToWire returns the wire text of the subtree.
func (n *Node) ToWire() (string, error) {
	data, err := n.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}
