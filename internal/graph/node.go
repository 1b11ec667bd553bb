package graph

import (
	"fmt"
	"math"
)

// NodeKind is the expression kind stored in a Node's sub field.
type NodeKind uint16

const (
	NodeInvalid NodeKind = iota
	// NodeIdent references a binding by its text.
	NodeIdent
	NodeInt
	NodeDouble
	NodeBool
	NodeString
	NodeDateTime
	// NodeApply calls the function named by its text with its children.
	NodeApply
	NodeTuple
	// NodeIf has children cond, then, else.
	NodeIf
	// NodeLet binds its text to child 0 while checking child 1.
	NodeLet
	numNodeKinds
)

var nodeKindNames = [...]string{
	NodeInvalid:  "invalid",
	NodeIdent:    "ident",
	NodeInt:      "int",
	NodeDouble:   "double",
	NodeBool:     "bool",
	NodeString:   "string",
	NodeDateTime: "datetime",
	NodeApply:    "apply",
	NodeTuple:    "tuple",
	NodeIf:       "if",
	NodeLet:      "let",
}

func (k NodeKind) String() string {
	if k < numNodeKinds {
		return nodeKindNames[k]
	}
	return fmt.Sprintf("node(%d)", uint16(k))
}

const (
	nodeIVal  = 8
	nodeDVal  = 16
	nodeLVal  = 24
	nodeSpan  = 32
	nodeText  = 40
	nodeType  = 48
	nodeExt    = 56
	nodeCoerce = 64
	nodeFixed  = 72
)

// Span is a source range [Start, End).
type Span struct {
	Start, End uint32
}

// NodeSpec describes a node to build.
type NodeSpec struct {
	Kind     NodeKind
	IVal     int64
	DVal     float64
	LVal     int64
	Span     Span
	Text     Ptr
	Type     Ptr
	Ext      uint64
	Children []Ptr
}

// NewNode allocates a Node record.
func NewNode(h Heap, spec NodeSpec) (Ptr, error) {
	r, err := New(h, TagNode, uint16(spec.Kind), len(spec.Children))
	if err != nil {
		return 0, err
	}
	r.SetWord(nodeIVal, uint64(spec.IVal)) //nolint:gosec // bit pattern
	r.SetWord(nodeDVal, math.Float64bits(spec.DVal))
	r.SetWord(nodeLVal, uint64(spec.LVal)) //nolint:gosec // bit pattern
	le.PutUint32(r.b[nodeSpan:], spec.Span.Start)
	le.PutUint32(r.b[nodeSpan+4:], spec.Span.End)
	r.SetWord(nodeText, uint64(spec.Text))
	r.SetWord(nodeType, uint64(spec.Type))
	r.SetWord(nodeExt, spec.Ext)
	for i, c := range spec.Children {
		r.SetWord(nodeFixed+i*WordSize, uint64(c))
	}
	return r.Ptr(), nil
}

// NewIdent builds an identifier node.
func NewIdent(h Heap, name string) (Ptr, error) {
	t, err := NewText(h, name)
	if err != nil {
		return 0, err
	}
	return NewNode(h, NodeSpec{Kind: NodeIdent, Text: t})
}

// NewIntLit builds an integer literal.
func NewIntLit(h Heap, v int64) (Ptr, error) {
	return NewNode(h, NodeSpec{Kind: NodeInt, IVal: v})
}

// NewStringLit builds a string literal.
func NewStringLit(h Heap, s string) (Ptr, error) {
	t, err := NewText(h, s)
	if err != nil {
		return 0, err
	}
	return NewNode(h, NodeSpec{Kind: NodeString, Text: t})
}

// NewApply builds a call of fn with args.
func NewApply(h Heap, fn string, args ...Ptr) (Ptr, error) {
	t, err := NewText(h, fn)
	if err != nil {
		return 0, err
	}
	return NewNode(h, NodeSpec{Kind: NodeApply, Text: t, Children: args})
}

// Node is a read view of a Node record.
type Node struct {
	Record
}

// LoadNode reads the Node at p.
func LoadNode(sp Space, p Ptr) (Node, error) {
	r, err := LoadAs(sp, p, TagNode)
	return Node{r}, err
}

func (n Node) Kind() NodeKind { return NodeKind(n.Sub()) }
func (n Node) Arity() int { return n.Count() }
func (n Node) IVal() int64 { return int64(n.Word(nodeIVal)) } //nolint:gosec // bit pattern
func (n Node) DVal() float64 { return math.Float64frombits(n.Word(nodeDVal)) }
func (n Node) LVal() int64 { return int64(n.Word(nodeLVal)) } //nolint:gosec // bit pattern
func (n Node) Text() Ptr { return n.PtrAt(nodeText) }
func (n Node) Type() Ptr { return n.PtrAt(nodeType) }
func (n Node) Ext() uint64 { return n.Word(nodeExt) }

// Coerce returns the type the node's value is widened to at its use, or nil.
func (n Node) Coerce() Ptr { return n.PtrAt(nodeCoerce) }

func (n Node) Span() Span {
	return Span{Start: le.Uint32(n.b[nodeSpan:]), End: le.Uint32(n.b[nodeSpan+4:])}
}

// Child returns the i-th child.
func (n Node) Child(i int) (Ptr, error) { return n.TailPtr(i) }

// SetType annotates the node with its resolved type.
func (n Node) SetType(t Ptr) { n.SetWord(nodeType, uint64(t)) }

// SetCoerce marks the node's value for widening to t.
func (n Node) SetCoerce(t Ptr) { n.SetWord(nodeCoerce, uint64(t)) }
