// Package stage decides which tensors of a walked graph are materialized
// in the scratchpad, which are folded into their consumer and which share
// storage.
package stage

import (
	"fmt"

	"github.com/samcharles93/tessera/internal/graph"
	"github.com/samcharles93/tessera/internal/schedule"
)

// Rules are the driver-specific staging exclusions.
type Rules struct {
	// NoInline keeps a single-use intermediate materialized.
	NoInline func(*graph.Node) bool
	// Primary names the output whose write-back stage is the root of the
	// loop nest. Empty selects the first output.
	Primary string
}

// Plan is the staging result for one graph.
type Plan struct {
	Stages []*schedule.Stage
	Root   string

	byName map[string]*schedule.Stage
	// local maps a tensor to the scratchpad stage holding it.
	local map[string]string
}

// Build stages every tensor of g.
func Build(g *graph.Graph, rules Rules) (*Plan, error) {
	p := &Plan{
		byName: make(map[string]*schedule.Stage, 2*g.Len()),
		local:  make(map[string]string, g.Len()),
	}

	primary := rules.Primary
	if primary == "" {
		primary = g.Outputs[0].Name
	}
	out, ok := g.Lookup(primary)
	if !ok || !g.IsOutput(out) {
		return nil, schedule.Errorf(schedule.ErrInvalidGraphShape, "primary output %q is not an output of the graph", primary)
	}
	p.Root = primary

	for _, n := range g.Nodes() {
		switch {
		case n.Kind.IsPlaceholder():
			if g.IsOutput(n) {
				return nil, schedule.Errorf(schedule.ErrInvalidGraphShape, "input %q is also an output", n.Name)
			}
			if err := p.add(&schedule.Stage{
				Name: localName(n), Tensor: n.Name, Shape: n.Shape.Clone(), DType: n.DType,
				Scope: schedule.ScopeLocal, Kind: schedule.StageRead,
			}); err != nil {
				return nil, err
			}
			p.local[n.Name] = localName(n)

		case g.IsOutput(n):
			if err := p.addOutput(g, n); err != nil {
				return nil, err
			}

		case g.ConsumerCount(n) == 1 && !n.Kind.IsReduce() && (rules.NoInline == nil || !rules.NoInline(n)):
			if err := p.add(&schedule.Stage{
				Name: n.Name, Tensor: n.Name, Shape: n.Shape.Clone(), DType: n.DType,
				Scope: schedule.ScopeLocal, Kind: schedule.StageCompute, Inline: true,
			}); err != nil {
				return nil, err
			}

		default:
			if err := p.add(&schedule.Stage{
				Name: localName(n), Tensor: n.Name, Shape: n.Shape.Clone(), DType: n.DType,
				Scope: schedule.ScopeLocal, Kind: schedule.StageCompute, Writer: true,
			}); err != nil {
				return nil, err
			}
			p.local[n.Name] = localName(n)
		}
	}
	return p, nil
}

// addOutput stages an output as a local compute buffer plus its global
// write-back. An output read by other nodes gets a read alias of the local
// buffer instead of a second allocation.
func (p *Plan) addOutput(g *graph.Graph, n *graph.Node) error {
	writer := &schedule.Stage{
		Name: localName(n), Tensor: n.Name, Shape: n.Shape.Clone(), DType: n.DType,
		Scope: schedule.ScopeLocal, Kind: schedule.StageCompute, Writer: true,
	}
	if err := p.add(writer); err != nil {
		return err
	}
	p.local[n.Name] = writer.Name

	if g.ConsumerCount(n) > 0 {
		if err := p.add(&schedule.Stage{
			Name: n.Name + ".reuse", Tensor: n.Name, Shape: n.Shape.Clone(), DType: n.DType,
			Scope: schedule.ScopeLocal, Kind: schedule.StageRead, ReuseOf: writer.Name,
		}); err != nil {
			return err
		}
	}
	return p.add(&schedule.Stage{
		Name: n.Name, Tensor: n.Name, Shape: n.Shape.Clone(), DType: n.DType,
		Scope: schedule.ScopeGlobal, Kind: schedule.StageWrite, Output: true,
	})
}

func (p *Plan) add(st *schedule.Stage) error {
	if _, dup := p.byName[st.Name]; dup {
		return schedule.Errorf(schedule.ErrInvalidGraphShape, "stage name %q collides with another tensor", st.Name)
	}
	p.byName[st.Name] = st
	p.Stages = append(p.Stages, st)
	return nil
}

func localName(n *graph.Node) string {
	return n.Name + ".local"
}

// Lookup returns the stage called name.
func (p *Plan) Lookup(name string) (*schedule.Stage, bool) {
	st, ok := p.byName[name]
	return st, ok
}

// Local returns the scratchpad stage that holds tensor, if any.
func (p *Plan) Local(tensor string) (*schedule.Stage, bool) {
	name, ok := p.local[tensor]
	if !ok {
		return nil, false
	}
	return p.Lookup(name)
}

// Append adds stages created after staging, such as reduction partials.
func (p *Plan) Append(stages ...*schedule.Stage) error {
	for _, st := range stages {
		if err := p.add(st); err != nil {
			return err
		}
	}
	return nil
}

// Live counts the allocated scratchpad buffers with the full tile shape.
func (p *Plan) Live(full graph.Shape) int {
	n := 0
	for _, st := range p.Stages {
		if st.Allocated() && st.Shape.Equal(full) {
			n++
		}
	}
	return n
}

// Width is the widest element among the full-size allocated buffers.
func (p *Plan) Width(full graph.Shape) int {
	w := 0
	for _, st := range p.Stages {
		if st.Allocated() && st.Shape.Equal(full) {
			w = max(w, st.DType.Size())
		}
	}
	if w == 0 {
		for _, st := range p.Stages {
			w = max(w, st.DType.Size())
		}
	}
	return w
}

// Check verifies that every reuse pair has exactly one writer.
func (p *Plan) Check() error {
	for _, st := range p.Stages {
		if st.ReuseOf == "" {
			continue
		}
		w, ok := p.byName[st.ReuseOf]
		if !ok || !w.Writer {
			return fmt.Errorf("stage %q reuses %q which is not a writer", st.Name, st.ReuseOf)
		}
		if st.Writer {
			return fmt.Errorf("stage %q and its reuse target both write", st.Name)
		}
	}
	return nil
}
