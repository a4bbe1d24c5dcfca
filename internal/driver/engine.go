package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/samcharles93/tessera/internal/binding"
	"github.com/samcharles93/tessera/internal/graph"
	"github.com/samcharles93/tessera/internal/isa"
	"github.com/samcharles93/tessera/internal/logger"
	"github.com/samcharles93/tessera/internal/pipeline"
	"github.com/samcharles93/tessera/internal/placement"
	"github.com/samcharles93/tessera/internal/reduction"
	"github.com/samcharles93/tessera/internal/schedule"
	"github.com/samcharles93/tessera/internal/stage"
	"github.com/samcharles93/tessera/internal/tiling"
)

// job is everything a driver decides about its pattern. The engine runs
// the shared phases over it in a fixed order.
type job struct {
	pattern string
	req     Request

	// recognize runs after traversal and fills the pattern-specific fields
	// below from the walked graph.
	recognize func(g *graph.Graph, j *job) error

	primary string
	// input is the placeholder streamed by the primary read stage.
	input string
	// full is the tensor shape iterated by the root loop nest.
	full  graph.Shape
	order []int

	rules      stage.Rules
	keepInner  int
	exact      bool
	maxFused   int
	singleCore bool
	pin        func(*schedule.Stage) bool

	// reduce is set for reduction patterns.
	reduce *reduction.Input

	// advise adjusts the double-buffer flags after the general rule.
	advise func(flags []schedule.DoubleBufferFlag, j *job) []schedule.DoubleBufferFlag
}

// run executes one scheduling call. Any failure aborts the call and is
// stamped with the last phase reached; no partial schedule is returned.
func run(ctx context.Context, j *job) (*schedule.Schedule, error) {
	log := logger.FromContext(ctx).With("pattern", j.pattern, "capability", j.req.Capability.Name)
	var tr schedule.Tracker
	fail := func(err error) (*schedule.Schedule, error) {
		err = schedule.AtPhase(err, tr.Current())
		log.Debug("schedule failed", "phase", tr.Current().String(), "error", err)
		return nil, err
	}
	advance := func(p schedule.Phase) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return tr.Advance(p)
	}

	capab := j.req.Capability.WithDefaults()
	if err := capab.Validate(); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}
	j.singleCore = j.singleCore || j.req.Options.SingleCore

	g, err := graph.Walk(j.req.Outputs...)
	if err != nil {
		return fail(graphError(err))
	}
	if err := checkProducers(g); err != nil {
		return fail(err)
	}
	if err := j.recognize(g, j); err != nil {
		return fail(err)
	}
	if err := advance(schedule.PhaseTraversed); err != nil {
		return fail(err)
	}
	log.Debug("graph traversed", "nodes", g.Len(), "outputs", len(g.Outputs))

	if j.rules.Primary == "" {
		j.rules.Primary = j.primary
	}
	staged, err := stage.Build(g, j.rules)
	if err != nil {
		return fail(err)
	}
	if err := staged.Check(); err != nil {
		return fail(schedule.Errorf(schedule.ErrInvalidGraphShape, "%v", err))
	}
	if err := advance(schedule.PhaseStaged); err != nil {
		return fail(err)
	}

	var decision *reduction.Decision
	if j.reduce != nil {
		in := *j.reduce
		in.Capability = capab
		in.SingleCore = in.SingleCore || j.singleCore
		d, err := reduction.Decide(in)
		if err != nil {
			return fail(err)
		}
		decision = &d
		j.order = d.Order
		j.maxFused = d.MaxFused
		j.singleCore = !d.Bound()
		log.Debug("reduction decided", "mode", d.Plan.Mode.String(), "order", d.Order)
	}

	space, err := schedule.NewSpace(j.full, j.order)
	if err != nil {
		return fail(err)
	}
	live := staged.Live(j.full)
	width := staged.Width(j.full)
	// Every pattern may pipeline its primary read, so the second copy of
	// the tile is budgeted up front.
	treq := tiling.Request{
		Shape:        space.Dims,
		Width:        width,
		Live:         live,
		Capacity:     capab.ScratchpadBytes,
		DoubleBuffer: true,
		BlockBytes:   capab.BlockBytes,
		KeepInner:    j.keepInner,
		Exact:        j.exact,
	}
	coarse, err := tiling.Plan(treq)
	if err != nil {
		return fail(err)
	}
	if err := advance(schedule.PhaseTiled); err != nil {
		return fail(err)
	}
	log.Debug("tiled", "live", live, "width", width, "plan", coarse.String())

	var (
		bound   *schedule.CoreBinding
		perCore schedule.IterSpace
	)
	if j.singleCore {
		perCore = binding.SingleCore(space)
	} else {
		out := g.Outputs[0]
		if o, ok := g.Lookup(j.primary); ok {
			out = o
		}
		opts := binding.Options{
			MaxFused:   j.maxFused,
			BlockBytes: capab.BlockBytes,
			Width:      out.DType.Size(),
			OutDims:    outDims(out.Shape, space),
		}
		split := decision != nil && decision.Plan.Mode == schedule.ReduceAtomicSplit
		if split {
			// every core combines into the whole output
			opts.BlockBytes = 0
		}
		b, _ := binding.Bind(space, coarse, capab.CoreNum, opts)
		if split {
			b.Rule = schedule.RuleReduceSplit
		}
		if decision != nil {
			decision.Plan.Parts = b.Parts
		}
		bound = &b
		perCore = binding.PerCoreSpace(space, b)
	}
	treq.Shape = perCore.Dims
	if bound != nil {
		treq.PerCoreLimit = bound.PerCore
	}
	plan, err := tiling.Plan(treq)
	if err != nil {
		return fail(err)
	}
	nest := schedule.BuildNest(perCore, bound, plan)
	if err := advance(schedule.PhaseBound); err != nil {
		return fail(err)
	}
	log.Debug("bound", "block_dim", nest.Loops[0].Extent, "nest", nest.String())

	edges, err := placement.Plan(placement.Input{
		Stages: staged.Stages,
		Root:   staged.Root,
		Nest:   nest,
		Full:   j.full,
		Pin:    j.pin,
	})
	if err != nil {
		return fail(err)
	}
	if err := advance(schedule.PhasePlaced); err != nil {
		return fail(err)
	}

	if decision != nil {
		reduceOuts := make([]*graph.Node, 0, len(g.Outputs))
		for _, o := range g.Outputs {
			if o.Kind.IsReduce() {
				reduceOuts = append(reduceOuts, o)
			}
		}
		rf, rfEdges := reduction.Factor(decision, reduceOuts, edges, nest, staged.Root)
		if err := staged.Append(rf...); err != nil {
			return fail(err)
		}
		edges = append(edges, rfEdges...)
		if err := advance(schedule.PhaseReductionFactored); err != nil {
			return fail(err)
		}
	}

	instrs, err := isa.Bind(g, staged.Stages, capab)
	if err != nil {
		return fail(err)
	}
	if err := advance(schedule.PhaseInstructionBound); err != nil {
		return fail(err)
	}

	flags := pipeline.Advise(pipeline.Input{
		Stages:  staged.Stages,
		Attach:  edges,
		Nest:    nest,
		Primary: j.input + ".local",
	})
	if j.advise != nil {
		flags = j.advise(flags, j)
	}
	if err := advance(schedule.PhaseDoubleBufferAdvised); err != nil {
		return fail(err)
	}

	s := &schedule.Schedule{
		Pattern:      j.pattern,
		Capability:   capab.Name,
		Root:         staged.Root,
		Stages:       staged.Stages,
		Space:        space,
		PerCore:      perCore,
		Tiling:       plan,
		Binding:      bound,
		Nest:         nest,
		Attach:       edges,
		Instructions: instrs,
		DoubleBuffer: flags,
	}
	if decision != nil {
		s.Reduction = &decision.Plan
	}
	if err := schedule.Validate(s, capab.CoreNum); err != nil {
		return fail(err)
	}
	if err := advance(schedule.PhaseFinalized); err != nil {
		return fail(err)
	}
	s.Trail = tr.Trail()
	log.Debug("schedule finalized", "block_dim", s.BlockDim(), "stages", len(s.Stages), "edges", len(s.Attach))
	return s, nil
}

// outDims lays the extents of shape out in the loop order of space.
func outDims(shape graph.Shape, space schedule.IterSpace) []int {
	if len(shape) != space.Rank() {
		return nil
	}
	dims := make([]int, space.Rank())
	for i, axes := range space.Axes {
		dims[i] = 1
		for _, ax := range axes {
			dims[i] *= shape[ax]
		}
	}
	return dims
}

// checkProducers rejects computed nodes whose operands are missing.
func checkProducers(g *graph.Graph) error {
	for _, n := range g.Nodes() {
		if n.Kind == graph.OpUnknown {
			continue
		}
		if want := n.Kind.Arity(); len(n.Inputs) != want {
			return schedule.Errorf(schedule.ErrInvalidGraphShape, "%s %q has %d producers, want %d", n.Kind, n.Name, len(n.Inputs), want)
		}
	}
	return nil
}

// graphError classifies traversal failures as invalid graphs.
func graphError(err error) error {
	switch {
	case errors.Is(err, graph.ErrNoOutputs), errors.Is(err, graph.ErrNilNode),
		errors.Is(err, graph.ErrDuplicateName), errors.Is(err, graph.ErrCycle),
		errors.Is(err, graph.ErrMissingProducer), errors.Is(err, graph.ErrUnnamed):
		return schedule.Errorf(schedule.ErrInvalidGraphShape, "%v", err)
	}
	return err
}
