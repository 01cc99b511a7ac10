package viewproto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textNode(t *testing.T, id, text string) *Node {
	t.Helper()
	p, err := BuildProps(KindTextView, map[string]string{"id": id, "text": text})
	require.NoError(t, err)
	n, err := NewNode(p)
	require.NoError(t, err)
	return n
}

func TestNodeChildrenInOrder(t *testing.T) {
	a := textNode(t, "a", "A")
	b := textNode(t, "b", "B")
	root, err := NewNode(mustBuild(t, KindLinearLayout, map[string]string{"id": "root"}), a, b)
	require.NoError(t, err)

	aw, err := a.ToWire()
	require.NoError(t, err)
	bw, err := b.ToWire()
	require.NoError(t, err)

	got, err := root.ToWire()
	require.NoError(t, err)
	assert.Contains(t, got, `"children":[`+aw+`,`+bw+`]}`)
	assert.NotContains(t, got, `,]`)
}

func TestNodeWireShape(t *testing.T) {
	n := textNode(t, "t1", "Hi")
	got, err := n.ToWire()
	require.NoError(t, err)
	assert.Equal(t,
		`{"type":"TextView","props":{"id":"t1","layout_width":"match_parent","layout_height":"wrap_content","text":"Hi"}}`,
		got)
}

func TestNodeEmptyChildrenOmitted(t *testing.T) {
	n := textNode(t, "t1", "Hi")
	n.Children = []*Node{}
	got, err := n.ToWire()
	require.NoError(t, err)
	assert.NotContains(t, got, "children")
}

func TestNodeEmptyKind(t *testing.T) {
	n := &Node{Props: json.RawMessage(`{"id":"x"}`)}
	_, err := n.ToWire()
	assert.ErrorIs(t, err, ErrEmptyKind)

	root := textNode(t, "root", "r")
	root.Children = []*Node{n}
	_, err = root.ToWire()
	assert.ErrorIs(t, err, ErrEmptyKind)
}

func TestNewNodeRejectsEmptyID(t *testing.T) {
	_, err := NewNode(TextView())
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestNewNodeNilProps(t *testing.T) {
	n, err := NewNode(nil)
	assert.ErrorIs(t, err, ErrNilProps)
	assert.Nil(t, n)
}

func TestNodeClone(t *testing.T) {
	leaf := textNode(t, "t1", "one")
	root, err := NewNode(mustBuild(t, KindLinearLayout, map[string]string{"id": "root"}), leaf)
	require.NoError(t, err)

	cp := root.Clone()
	want, err := root.ToWire()
	require.NoError(t, err)

	require.NoError(t, leaf.SetProps(mustBuild(t, KindTextView, map[string]string{"id": "t1", "text": "two"})))
	got, err := cp.ToWire()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.NotSame(t, root.Child(0), cp.Child(0))
}

func TestNodeCycle(t *testing.T) {
	a := textNode(t, "a", "A")
	b := textNode(t, "b", "B")
	a.Children = []*Node{b}
	b.Children = []*Node{a}
	_, err := a.ToWire()
	assert.ErrorIs(t, err, ErrCycle)
}

func TestNodeSharedLeafIsNotACycle(t *testing.T) {
	leaf := textNode(t, "leaf", "x")
	root := textNode(t, "root", "r")
	root.Children = []*Node{leaf, leaf}
	_, err := root.ToWire()
	assert.NoError(t, err)
}

func TestNodeTooDeep(t *testing.T) {
	n := textNode(t, "n", "x")
	for i := 0; i < MaxTreeDepth; i++ {
		n = &Node{Kind: KindLinearLayout, Props: json.RawMessage(`{"id":"l"}`), Children: []*Node{n}}
	}
	_, err := n.ToWire()
	assert.ErrorIs(t, err, ErrTooDeep)
}

func TestNodeSetPropsAndFind(t *testing.T) {
	a := textNode(t, "textView", "Hello World")
	root, err := NewNode(mustBuild(t, KindLinearLayout, map[string]string{"id": "root"}), a)
	require.NoError(t, err)

	found := root.Find("textView")
	require.NotNil(t, found)
	require.NoError(t, found.SetProps(mustBuild(t, KindTextView, map[string]string{"id": "textView", "text": "Hello Rokid 3"})))

	got, err := root.ToWire()
	require.NoError(t, err)
	assert.Contains(t, got, `"text":"Hello Rokid 3"`)
	assert.Nil(t, root.Find("missing"))
	assert.Nil(t, root.Child(5))
}

func TestNodeSpecBuild(t *testing.T) {
	spec := NodeSpec{
		Type:  KindLinearLayout,
		Props: map[string]string{"id": "root", "orientation": "horizontal"},
		Children: []NodeSpec{
			{Type: KindTextView, Props: map[string]string{"id": "t", "text": "x", "textSize": "12"}},
			{Type: KindImageView, Props: map[string]string{"id": "i", "name": "icon1"}},
		},
	}
	n, err := spec.Build()
	require.NoError(t, err)
	require.Len(t, n.Children, 2)

	got, err := n.ToWire()
	require.NoError(t, err)
	assert.Contains(t, got, `"textSize":"12sp"`)
	require.NoError(t, CheckDocument([]byte(got)))

	spec.Children[1].Props["scaleType"] = "zoom"
	_, err = spec.Build()
	assert.ErrorIs(t, err, ErrInvalidEnum)

	_, err = NodeSpec{Props: map[string]string{"id": "x"}}.Build()
	assert.ErrorIs(t, err, ErrEmptyKind)
}

func mustBuild(t *testing.T, kind Kind, values map[string]string) *Props {
	t.Helper()
	p, err := BuildProps(kind, values)
	require.NoError(t, err)
	return p
}
