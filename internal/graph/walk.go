package graph

import (
	"errors"
	"fmt"
)

var (
	ErrNoOutputs     = errors.New("graph has no outputs")
	ErrNilNode       = errors.New("graph references a nil node")
	ErrDuplicateName = errors.New("duplicate tensor name")
	ErrCycle         = errors.New("graph contains a cycle")
	ErrUnnamed       = errors.New("tensor without a name")
)

// Patterns records which fusible sub-patterns occur in a graph.
type Patterns struct {
	Elementwise bool `json:"elementwise"`
	Broadcast   bool `json:"broadcast"`
	Reduce      bool `json:"reduce"`
	Cast        bool `json:"cast"`
}

// Graph is the producer/consumer view of the tensors reachable from a set
// of outputs. Nodes are stored in post-order, so every producer precedes
// its consumers.
type Graph struct {
	Outputs  []*Node
	Patterns Patterns

	nodes     []*Node
	index     map[*Node]int
	byName    map[string]*Node
	consumers [][]int
	isOutput  []bool
}

const (
	unseen uint8 = iota
	onStack
	done
)

type frame struct {
	n    *Node
	next int
}

// Walk traverses the graph depth-first from outputs with an explicit stack,
// visiting each node exactly once.
func Walk(outputs ...*Node) (*Graph, error) {
	if len(outputs) == 0 {
		return nil, ErrNoOutputs
	}
	g := &Graph{
		Outputs: append([]*Node(nil), outputs...),
		index:   make(map[*Node]int),
		byName:  make(map[string]*Node),
	}
	state := make(map[*Node]uint8)

	for _, out := range outputs {
		if out == nil {
			return nil, ErrNilNode
		}
		if state[out] == done {
			continue
		}
		state[out] = onStack
		stack := []frame{{n: out}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(top.n.Inputs) {
				in := top.n.Inputs[top.next]
				top.next++
				if in == nil {
					return nil, fmt.Errorf("%w: input of %q", ErrNilNode, top.n.Name)
				}
				switch state[in] {
				case unseen:
					state[in] = onStack
					stack = append(stack, frame{n: in})
				case onStack:
					return nil, fmt.Errorf("%w: through %q", ErrCycle, in.Name)
				}
				continue
			}
			if err := g.add(top.n); err != nil {
				return nil, err
			}
			state[top.n] = done
			stack = stack[:len(stack)-1]
		}
	}

	g.consumers = make([][]int, len(g.nodes))
	for i, n := range g.nodes {
		for _, in := range n.Inputs {
			j := g.index[in]
			if c := g.consumers[j]; len(c) > 0 && c[len(c)-1] == i {
				continue
			}
			g.consumers[j] = append(g.consumers[j], i)
		}
	}
	g.isOutput = make([]bool, len(g.nodes))
	for _, out := range outputs {
		g.isOutput[g.index[out]] = true
	}
	return g, nil
}

func (g *Graph) add(n *Node) error {
	if prev, ok := g.byName[n.Name]; ok && prev != n {
		return fmt.Errorf("%w: %q", ErrDuplicateName, n.Name)
	}
	g.index[n] = len(g.nodes)
	g.byName[n.Name] = n
	g.nodes = append(g.nodes, n)

	switch {
	case n.Kind.IsBroadcast():
		g.Patterns.Broadcast = true
	case n.Kind.IsReduce():
		g.Patterns.Reduce = true
	case n.Kind.IsCast():
		g.Patterns.Cast = true
		g.Patterns.Elementwise = true
	case n.Kind.IsElementwise():
		g.Patterns.Elementwise = true
	}
	return nil
}

// Nodes returns the nodes in post-order. The slice must not be modified.
func (g *Graph) Nodes() []*Node { return g.nodes }

func (g *Graph) Len() int { return len(g.nodes) }

func (g *Graph) Lookup(name string) (*Node, bool) {
	n, ok := g.byName[name]
	return n, ok
}

func (g *Graph) Contains(n *Node) bool {
	_, ok := g.index[n]
	return ok
}

// Consumers returns the distinct consumers of n in post-order.
func (g *Graph) Consumers(n *Node) []*Node {
	i, ok := g.index[n]
	if !ok {
		return nil
	}
	out := make([]*Node, len(g.consumers[i]))
	for k, j := range g.consumers[i] {
		out[k] = g.nodes[j]
	}
	return out
}

func (g *Graph) ConsumerCount(n *Node) int {
	i, ok := g.index[n]
	if !ok {
		return 0
	}
	return len(g.consumers[i])
}

func (g *Graph) IsOutput(n *Node) bool {
	i, ok := g.index[n]
	return ok && g.isOutput[i]
}

// Inputs returns the placeholders in post-order.
func (g *Graph) Inputs() []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if n.Kind.IsPlaceholder() {
			out = append(out, n)
		}
	}
	return out
}

// Find returns the first node in post-order matching pred.
func (g *Graph) Find(pred func(*Node) bool) *Node {
	for _, n := range g.nodes {
		if pred(n) {
			return n
		}
	}
	return nil
}
