package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// Dynamic marks a symbolic dimension.
const Dynamic = -1

// Shape is an ordered list of dimension extents.
type Shape []int

// Static reports whether every extent is known.
func (s Shape) Static() bool {
	for _, d := range s {
		if d < 0 {
			return false
		}
	}
	return true
}

// Elems returns the element count, or -1 for a symbolic shape.
func (s Shape) Elems() int {
	n := 1
	for _, d := range s {
		if d < 0 {
			return -1
		}
		n *= d
	}
	return n
}

func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s Shape) Clone() Shape {
	return append(Shape(nil), s...)
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		if d < 0 {
			parts[i] = "?"
			continue
		}
		parts[i] = strconv.Itoa(d)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// Node is one tensor of the compute graph. Identity is the pointer.
type Node struct {
	Name   string
	Shape  Shape
	DType  DType
	Kind   OpKind
	Tag    string
	Inputs []*Node

	// Scalar is the immediate operand of scalar ops (adds, muls).
	Scalar float64
	// Axes lists the reduced axes of a reduction.
	Axes []int
	// Round is the rounding mode of a float to integer cast.
	Round RoundMode
}

func (n *Node) String() string {
	return fmt.Sprintf("%s%s:%s<%s>", n.Name, n.Shape, n.DType, n.Kind)
}

// Placeholder creates a graph input.
func Placeholder(name string, shape Shape, dt DType) *Node {
	return &Node{Name: name, Shape: shape.Clone(), DType: dt, Kind: OpPlaceholder, Tag: OpPlaceholder.Tag()}
}

// Binary creates an elementwise binary op; operands must share a shape.
func Binary(name string, kind OpKind, a, b *Node) *Node {
	return &Node{Name: name, Shape: a.Shape.Clone(), DType: a.DType, Kind: kind, Tag: kind.Tag(), Inputs: []*Node{a, b}}
}

// Scalar creates an op combining a tensor with an immediate.
func Scalar(name string, kind OpKind, a *Node, v float64) *Node {
	return &Node{Name: name, Shape: a.Shape.Clone(), DType: a.DType, Kind: kind, Tag: kind.Tag(), Inputs: []*Node{a}, Scalar: v}
}

func Unary(name string, kind OpKind, a *Node) *Node {
	return &Node{Name: name, Shape: a.Shape.Clone(), DType: a.DType, Kind: kind, Tag: kind.Tag(), Inputs: []*Node{a}}
}

func Cast(name string, a *Node, to DType, round RoundMode) *Node {
	return &Node{Name: name, Shape: a.Shape.Clone(), DType: to, Kind: OpCast, Tag: OpCast.Tag(), Inputs: []*Node{a}, Round: round}
}

func Broadcast(name string, a *Node, shape Shape) *Node {
	return &Node{Name: name, Shape: shape.Clone(), DType: a.DType, Kind: OpBroadcast, Tag: OpBroadcast.Tag(), Inputs: []*Node{a}}
}

// Reduce creates a keep-dims reduction over axes.
func Reduce(name string, kind OpKind, a *Node, axes ...int) *Node {
	out := a.Shape.Clone()
	for _, ax := range axes {
		if ax >= 0 && ax < len(out) {
			out[ax] = 1
		}
	}
	return &Node{Name: name, Shape: out, DType: a.DType, Kind: kind, Tag: kind.Tag(), Inputs: []*Node{a}, Axes: append([]int(nil), axes...)}
}
