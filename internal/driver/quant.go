package driver

import (
	"context"

	"github.com/samcharles93/tessera/internal/graph"
	"github.com/samcharles93/tessera/internal/kernels"
	"github.com/samcharles93/tessera/internal/schedule"
	"github.com/samcharles93/tessera/internal/stage"
)

// quantDriver schedules an elementwise float to int8 quantization over an
// NC1HWC0 tensor. The C0 block is never split.
type quantDriver struct{}

func (quantDriver) Pattern() string { return kernels.PatternQuant }

func (quantDriver) Schedule(ctx context.Context, req Request) (*schedule.Schedule, error) {
	attrs, ok := req.Attrs.(kernels.QuantAttrs)
	if !ok {
		return nil, schedule.Errorf(schedule.ErrUnsupportedPattern, "quant driver got %T attributes", req.Attrs)
	}
	j := &job{
		pattern:    kernels.PatternQuant,
		req:        req,
		recognize:  recognizeQuant,
		keepInner:  1,
		maxFused:   4,
		singleCore: attrs.InputPinned,
		rules: stage.Rules{
			// The input narrowing cast writes its own float16 buffer.
			NoInline: func(n *graph.Node) bool {
				return n.Kind.IsCast() && len(n.Inputs) == 1 && n.Inputs[0].Kind.IsPlaceholder()
			},
		},
	}
	return run(ctx, j)
}

func recognizeQuant(g *graph.Graph, j *job) error {
	if len(g.Outputs) != 1 {
		return schedule.Errorf(schedule.ErrInvalidGraphShape, "quant has one output, got %d", len(g.Outputs))
	}
	y := g.Outputs[0]
	if len(y.Shape) != 5 {
		return schedule.Errorf(schedule.ErrInvalidGraphShape, "quant output must be rank 5 (N,C1,H,W,C0), got %s", y.Shape)
	}
	if y.DType != graph.Int8 || !y.Kind.IsCast() {
		return schedule.Errorf(schedule.ErrInvalidGraphShape, "quant output %q must be an int8 cast, got %s %s", y.Name, y.DType, y.Kind)
	}
	inputs := g.Inputs()
	if len(inputs) != 1 {
		return schedule.Errorf(schedule.ErrInvalidGraphShape, "quant reads one tensor, got %d", len(inputs))
	}
	x := inputs[0]
	if !x.Shape.Equal(y.Shape) {
		return schedule.Errorf(schedule.ErrInvalidGraphShape, "quant input %s and output %s differ in shape", x.Shape, y.Shape)
	}
	j.primary = y.Name
	j.input = x.Name
	j.full = y.Shape.Clone()
	return nil
}
