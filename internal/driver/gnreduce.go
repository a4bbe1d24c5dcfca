package driver

import (
	"context"
	"slices"

	"github.com/samcharles93/tessera/internal/graph"
	"github.com/samcharles93/tessera/internal/kernels"
	"github.com/samcharles93/tessera/internal/reduction"
	"github.com/samcharles93/tessera/internal/schedule"
	"github.com/samcharles93/tessera/internal/stage"
)

// gnReduceDriver schedules the per-group sum and square sum of a grouped
// rank-5 input. Tiles must divide the reduced axes exactly so partial sums
// never see a ragged tail.
type gnReduceDriver struct{}

func (gnReduceDriver) Pattern() string { return kernels.PatternGNReduce }

func (gnReduceDriver) Schedule(ctx context.Context, req Request) (*schedule.Schedule, error) {
	attrs, ok := req.Attrs.(kernels.GroupNormAttrs)
	if !ok {
		return nil, schedule.Errorf(schedule.ErrUnsupportedPattern, "gn reduce driver got %T attributes", req.Attrs)
	}
	if attrs.Format != kernels.FormatNCHW && attrs.Format != kernels.FormatNHWC {
		return nil, schedule.Errorf(schedule.ErrInvalidGraphShape, "group norm format must be NCHW or NHWC, got %q", attrs.Format)
	}
	layout := schedule.RowMajor
	if attrs.Format == kernels.FormatNHWC {
		layout = schedule.ChannelMajor
	}
	j := &job{
		pattern:   kernels.PatternGNReduce,
		req:       req,
		keepInner: 1,
		exact:     true,
		rules: stage.Rules{
			// The square feeds a lane-wise accumulation and is kept whole.
			NoInline: func(n *graph.Node) bool { return n.Kind == graph.OpMul },
		},
		reduce: &reduction.Input{
			ReduceAxes: attrs.ReduceAxes(),
			Layout:     layout,
		},
	}
	j.recognize = func(g *graph.Graph, j *job) error {
		return recognizeGNReduce(g, j, attrs)
	}
	return run(ctx, j)
}

func recognizeGNReduce(g *graph.Graph, j *job, attrs kernels.GroupNormAttrs) error {
	inputs := g.Inputs()
	if len(inputs) != 1 {
		return schedule.Errorf(schedule.ErrInvalidGraphShape, "gn reduce reads one tensor, got %d", len(inputs))
	}
	x := inputs[0]
	if len(x.Shape) != 5 {
		return schedule.Errorf(schedule.ErrInvalidGraphShape, "gn reduce input must be rank 5, got %s", x.Shape)
	}
	if x.Shape[attrs.GroupAxis()] != attrs.NumGroups {
		return schedule.Errorf(schedule.ErrInvalidGraphShape,
			"gn reduce input %s has %d groups on axis %d, want %d", x.Shape, x.Shape[attrs.GroupAxis()], attrs.GroupAxis(), attrs.NumGroups)
	}

	axes := attrs.ReduceAxes()
	var outType graph.DType
	for _, o := range g.Outputs {
		if !o.Kind.IsReduce() || !sameAxes(o.Axes, axes) {
			return schedule.Errorf(schedule.ErrInvalidGraphShape, "gn reduce output %q must reduce axes %v", o.Name, axes)
		}
		if outType != graph.DTypeInvalid && o.DType != outType {
			return schedule.Errorf(schedule.ErrInvalidGraphShape, "gn reduce outputs mix %s and %s", outType, o.DType)
		}
		outType = o.DType
	}

	j.primary = g.Outputs[0].Name
	j.input = x.Name
	j.full = x.Shape.Clone()
	j.reduce.Shape = x.Shape.Clone()
	j.reduce.OutDType = outType
	return nil
}

func sameAxes(a, b []int) bool {
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}
