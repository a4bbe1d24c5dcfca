package driver

import (
	"context"

	"github.com/samcharles93/tessera/internal/graph"
	"github.com/samcharles93/tessera/internal/kernels"
	"github.com/samcharles93/tessera/internal/pipeline"
	"github.com/samcharles93/tessera/internal/schedule"
)

// bnUpdateDriver schedules the training batch-norm update. Cores split the
// C1 channel blocks so the per-channel statistics never cross a core.
type bnUpdateDriver struct{}

func (bnUpdateDriver) Pattern() string { return kernels.PatternBNUpdate }

func (bnUpdateDriver) Schedule(ctx context.Context, req Request) (*schedule.Schedule, error) {
	if _, ok := req.Attrs.(kernels.BNUpdateAttrs); !ok {
		return nil, schedule.Errorf(schedule.ErrUnsupportedPattern, "bn update driver got %T attributes", req.Attrs)
	}
	j := &job{
		pattern:   kernels.PatternBNUpdate,
		req:       req,
		recognize: recognizeBNUpdate,
		// C1 leads so a core owns whole channel blocks.
		order:     []int{1, 0, 2, 3, 4},
		keepInner: 1,
		maxFused:  1,
		advise:    evenBatch,
	}
	return run(ctx, j)
}

func recognizeBNUpdate(g *graph.Graph, j *job) error {
	if len(g.Outputs) != 5 {
		return schedule.Errorf(schedule.ErrInvalidGraphShape, "bn update has five outputs, got %d", len(g.Outputs))
	}
	y := g.Outputs[0]
	if len(y.Shape) != 5 {
		return schedule.Errorf(schedule.ErrInvalidGraphShape, "bn update output must be rank 5 (N,C1,H,W,C0), got %s", y.Shape)
	}
	x := g.Find(func(n *graph.Node) bool { return n.Kind.IsPlaceholder() && n.Shape.Equal(y.Shape) })
	if x == nil {
		return schedule.Errorf(schedule.ErrInvalidGraphShape, "bn update has no input shaped like %s", y.Shape)
	}
	stats := graph.Shape{1, y.Shape[1], 1, 1, y.Shape[4]}
	for _, n := range g.Nodes() {
		if n.DType != graph.Float32 {
			return schedule.Errorf(schedule.ErrInvalidGraphShape, "bn update tensor %q must be float32, got %s", n.Name, n.DType)
		}
		if n.Kind.IsPlaceholder() && n != x && !n.Shape.Equal(stats) {
			return schedule.Errorf(schedule.ErrInvalidGraphShape, "bn update statistic %q has shape %s, want %s", n.Name, n.Shape, stats)
		}
	}
	for _, o := range g.Outputs[1:] {
		if !o.Shape.Equal(stats) {
			return schedule.Errorf(schedule.ErrInvalidGraphShape, "bn update output %q has shape %s, want %s", o.Name, o.Shape, stats)
		}
	}
	j.primary = y.Name
	j.input = x.Name
	j.full = y.Shape.Clone()
	return nil
}

// evenBatch always pipelines the input when the batch is even, whatever
// its trip count.
func evenBatch(flags []schedule.DoubleBufferFlag, j *job) []schedule.DoubleBufferFlag {
	return pipeline.ForceEvenBatch(flags, j.input+".local", j.full[0])
}
