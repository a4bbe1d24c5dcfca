package isa

import (
	"fmt"
	"slices"

	"github.com/samcharles93/tessera/internal/capability"
	"github.com/samcharles93/tessera/internal/graph"
	"github.com/samcharles93/tessera/internal/schedule"
)

// Bind maps every computed node of g and every data-moving stage to an
// instruction. The first miss aborts the whole binding.
func Bind(g *graph.Graph, stages []*schedule.Stage, c capability.Capability) ([]schedule.InstructionBinding, error) {
	out := make([]schedule.InstructionBinding, 0, g.Len()+len(stages))
	for _, n := range g.Nodes() {
		if n.Kind.IsPlaceholder() {
			continue
		}
		if n.Kind == graph.OpUnknown {
			return nil, schedule.Errorf(schedule.ErrInstructionMappingMiss, "tensor %q has unknown tag %q", n.Name, n.Tag)
		}
		mode := Mode{Round: n.Round}
		if len(n.Inputs) > 0 {
			mode.From = n.Inputs[0].DType
		}
		if n.Kind.IsReduce() {
			mode.LastAxis = slices.Contains(n.Axes, len(n.Shape)-1)
		}
		m, err := Lookup(n.Kind, n.DType, mode, c)
		if err != nil {
			return nil, annotate(err, n.Name)
		}
		ib := schedule.InstructionBinding{Tensor: n.Name, Kind: n.Kind, DType: n.DType, Instruction: m}
		if n.Kind.IsScalar() {
			imm, err := Immediate(n.Scalar, n.DType)
			if err != nil {
				return nil, annotate(err, n.Name)
			}
			ib.Immediate = imm
		}
		out = append(out, ib)
	}

	for _, st := range stages {
		var m string
		switch {
		case st.Kind == schedule.StageRead && st.ReuseOf == "":
			m = DMACopy
		case st.Kind == schedule.StageWrite:
			m = DMACopy
		case st.Kind == schedule.StageReduceGlobal:
			if !c.AtomicAdd || st.DType != graph.Float32 {
				return nil, schedule.Errorf(schedule.ErrInstructionMappingMiss,
					"stage %q needs an atomic %s add which %q lacks", st.Name, st.DType, c.Name)
			}
			m = DMAAtomicAdd
		default:
			continue
		}
		out = append(out, schedule.InstructionBinding{Tensor: st.Name, DType: st.DType, Instruction: m})
	}
	return out, nil
}

func annotate(err error, tensor string) error {
	if se, ok := err.(*schedule.Error); ok {
		cp := *se
		cp.Msg = fmt.Sprintf("tensor %q: %s", tensor, se.Msg)
		return &cp
	}
	return fmt.Errorf("tensor %q: %w", tensor, err)
}
