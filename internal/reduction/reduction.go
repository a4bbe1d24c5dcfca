// Package reduction decides how a reduction is spread over the cores and
// materializes the partial-sum stages of a split reduction.
package reduction

import (
	"slices"

	"github.com/samcharles93/tessera/internal/capability"
	"github.com/samcharles93/tessera/internal/graph"
	"github.com/samcharles93/tessera/internal/schedule"
)

// Input describes the reduced tensor.
type Input struct {
	// Shape is the shape of the reduced tensor in its declared layout.
	Shape      graph.Shape
	ReduceAxes []int
	Layout     schedule.Layout
	// OutDType is the accumulation type of the reduce outputs.
	OutDType   graph.DType
	Capability capability.Capability
	// SingleCore forces the single-core fallback.
	SingleCore bool
}

// Decision is the chosen strategy plus the iteration order and fusion
// limit the core binder must use.
type Decision struct {
	Plan     schedule.ReductionPlan
	Order    []int
	MaxFused int
}

// Decide picks the reduction strategy. Data-parallel axes run first in the
// iteration order, reduce axes after them in declared order. An atomic split
// leads with its split axis and is only chosen when it spreads over more
// cores than the data-parallel axes do; a split that would run on a single
// core falls back without any combine stage.
func Decide(in Input) (Decision, error) {
	rank := len(in.Shape)
	if len(in.ReduceAxes) == 0 {
		return Decision{}, schedule.Errorf(schedule.ErrInvalidGraphShape, "reduction over %s has no reduce axes", in.Shape)
	}
	isReduce := make([]bool, rank)
	for _, ax := range in.ReduceAxes {
		if ax < 0 || ax >= rank || isReduce[ax] {
			return Decision{}, schedule.Errorf(schedule.ErrInvalidGraphShape, "reduce axes %v invalid for rank %d", in.ReduceAxes, rank)
		}
		isReduce[ax] = true
	}
	reduceAxes := slices.Clone(in.ReduceAxes)
	slices.Sort(reduceAxes)

	var dp []int
	dpExtent := 1
	for ax := 0; ax < rank; ax++ {
		if !isReduce[ax] {
			dp = append(dp, ax)
			dpExtent *= in.Shape[ax]
		}
	}
	order := append(slices.Clone(dp), reduceAxes...)
	plan := schedule.ReductionPlan{Layout: in.Layout, ReduceAxes: reduceAxes, SplitAxis: -1}
	cores := in.Capability.CoreNum

	single := Decision{Plan: plan, Order: order, MaxFused: len(dp)}
	single.Plan.Mode = schedule.ReduceSingleCore
	single.Plan.Parts = 1

	if in.SingleCore {
		return single, nil
	}
	if len(dp) > 0 && dpExtent >= cores {
		plan.Mode = schedule.ReduceDataParallel
		return Decision{Plan: plan, Order: order, MaxFused: len(dp)}, nil
	}
	if !in.Capability.AtomicAdd || in.OutDType != graph.Float32 {
		return single, nil
	}

	// A split must beat what the data-parallel axes reach on their own,
	// counting the whole-block write each of those cores has to issue.
	dpParts := 1
	if len(dp) > 0 {
		dpParts = min(cores, max(1, dpExtent/blockElems(in)))
	}
	split := splitAxis(in.Shape, reduceAxes, cores)
	parts := min(cores, in.Shape[split])
	switch {
	case parts > dpParts:
		plan.Mode = schedule.ReduceAtomicSplit
		plan.SplitAxis = split
		plan.Parts = parts
		rest := make([]int, 0, rank)
		rest = append(rest, split)
		for _, ax := range order {
			if ax != split {
				rest = append(rest, ax)
			}
		}
		return Decision{Plan: plan, Order: rest, MaxFused: 1}, nil
	case dpParts > 1:
		plan.Mode = schedule.ReduceDataParallel
		return Decision{Plan: plan, Order: order, MaxFused: len(dp)}, nil
	default:
		return single, nil
	}
}

// splitAxis is the outermost reduce axis that alone reaches cores, or the
// widest reduce axis when none does. Ties go to the outer axis.
func splitAxis(shape graph.Shape, reduceAxes []int, cores int) int {
	best := reduceAxes[0]
	for _, ax := range reduceAxes {
		if shape[ax] >= cores {
			return ax
		}
		if shape[ax] > shape[best] {
			best = ax
		}
	}
	return best
}

// blockElems is the number of reduce outputs that fill one DMA block.
func blockElems(in Input) int {
	width := in.OutDType.Size()
	if in.Capability.BlockBytes <= 0 || width <= 0 {
		return 1
	}
	return max(1, (in.Capability.BlockBytes+width-1)/width)
}

// Bound reports whether the decision runs on more than one core.
func (d Decision) Bound() bool {
	return d.Plan.Mode != schedule.ReduceSingleCore
}

// Factor adds a per-core partial stage and a cross-core combine stage for
// every reduce output of an atomic split. The partial stage shares the
// placement of the output's scratchpad buffer; the combine stage runs once
// per core at the block loop. Other strategies add nothing.
func Factor(d *Decision, outputs []*graph.Node, edges []schedule.ComputeAtEdge, nest schedule.LoopNest, root string) ([]*schedule.Stage, []schedule.ComputeAtEdge) {
	if d.Plan.Mode != schedule.ReduceAtomicSplit {
		return nil, nil
	}
	levelOf := make(map[string]schedule.ComputeAtEdge, len(edges))
	for _, e := range edges {
		levelOf[e.Stage] = e
	}
	block := nest.Loops[0].Name

	var (
		stages   []*schedule.Stage
		newEdges []schedule.ComputeAtEdge
	)
	for _, out := range outputs {
		local := &schedule.Stage{
			Name: out.Name + ".rf.local", Tensor: out.Name, Shape: out.Shape.Clone(), DType: out.DType,
			Scope: schedule.ScopeLocal, Kind: schedule.StageReduceLocal, Writer: true,
		}
		global := &schedule.Stage{
			Name: out.Name + ".rf.global", Tensor: out.Name, Shape: out.Shape.Clone(), DType: out.DType,
			Scope: schedule.ScopeGlobal, Kind: schedule.StageReduceGlobal,
		}
		stages = append(stages, local, global)

		edge := schedule.ComputeAtEdge{Stage: local.Name, Consumer: root, Level: block}
		if e, ok := levelOf[out.Name+".local"]; ok {
			edge.Level, edge.Hoisted = e.Level, e.Hoisted
		}
		newEdges = append(newEdges,
			edge,
			schedule.ComputeAtEdge{Stage: global.Name, Consumer: root, Level: block, Hoisted: nest.DefaultLevel() > 0},
		)
		d.Plan.Local = append(d.Plan.Local, local.Name)
		d.Plan.Global = append(d.Plan.Global, global.Name)
	}
	return stages, newEdges
}
