package graph

import (
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

var ErrMissingProducer = errors.New("missing producer")

// TensorSpec is the serialized form of one node.
type TensorSpec struct {
	Name   string    `json:"name"`
	Shape  []int     `json:"shape"`
	DType  DType     `json:"dtype"`
	Tag    string    `json:"tag"`
	Inputs []string  `json:"inputs,omitempty"`
	Scalar float64   `json:"scalar,omitempty"`
	Axes   []int     `json:"axes,omitempty"`
	Round  RoundMode `json:"round_mode,omitempty"`
}

// Spec is the serialized form of a compute graph.
type Spec struct {
	Tensors []TensorSpec `json:"tensors"`
	Outputs []string     `json:"outputs"`
}

func DecodeSpec(r io.Reader) (Spec, error) {
	var s Spec
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return Spec{}, fmt.Errorf("decode graph spec: %w", err)
	}
	return s, nil
}

// Build materializes the nodes and returns the declared outputs in order.
func (s Spec) Build() ([]*Node, error) {
	nodes := make(map[string]*Node, len(s.Tensors))
	for i, ts := range s.Tensors {
		if ts.Name == "" {
			return nil, fmt.Errorf("%w: tensor %d (%s)", ErrUnnamed, i, ts.Tag)
		}
		if _, dup := nodes[ts.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, ts.Name)
		}
		kind, round := ParseTag(ts.Tag)
		if ts.Round != RoundNone {
			round = ts.Round
		}
		nodes[ts.Name] = &Node{
			Name:   ts.Name,
			Shape:  Shape(ts.Shape).Clone(),
			DType:  ts.DType,
			Kind:   kind,
			Tag:    ts.Tag,
			Scalar: ts.Scalar,
			Axes:   append([]int(nil), ts.Axes...),
			Round:  round,
		}
	}
	for _, ts := range s.Tensors {
		n := nodes[ts.Name]
		for _, in := range ts.Inputs {
			p, ok := nodes[in]
			if !ok {
				return nil, fmt.Errorf("%w: %q consumes undeclared %q", ErrMissingProducer, ts.Name, in)
			}
			n.Inputs = append(n.Inputs, p)
		}
	}
	if len(s.Outputs) == 0 {
		return nil, ErrNoOutputs
	}
	outs := make([]*Node, 0, len(s.Outputs))
	for _, name := range s.Outputs {
		n, ok := nodes[name]
		if !ok {
			return nil, fmt.Errorf("%w: output %q", ErrMissingProducer, name)
		}
		outs = append(outs, n)
	}
	return outs, nil
}

// SpecOf serializes a walked graph.
func SpecOf(g *Graph) Spec {
	s := Spec{Tensors: make([]TensorSpec, 0, g.Len())}
	for _, n := range g.Nodes() {
		ts := TensorSpec{
			Name:   n.Name,
			Shape:  append([]int(nil), n.Shape...),
			DType:  n.DType,
			Tag:    n.Tag,
			Scalar: n.Scalar,
			Axes:   append([]int(nil), n.Axes...),
			Round:  n.Round,
		}
		for _, in := range n.Inputs {
			ts.Inputs = append(ts.Inputs, in.Name)
		}
		s.Tensors = append(s.Tensors, ts)
	}
	for _, out := range g.Outputs {
		s.Outputs = append(s.Outputs, out.Name)
	}
	return s
}
