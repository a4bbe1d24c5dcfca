// Package binding assigns the leading loops of an iteration space to the
// hardware cores.
package binding

import (
	"github.com/samcharles93/tessera/internal/schedule"
)

// Options carry the driver rules for one binding decision.
type Options struct {
	// MaxFused limits how many leading dims may be fused into the bound
	// axis. Zero allows all of them.
	MaxFused int
	// BlockBytes is the smallest write a core should issue.
	BlockBytes int
	// Width is the element size of the primary output.
	Width int
	// OutDims are the primary output extents in loop order. Nil means the
	// output covers the whole space.
	OutDims []int
}

// Bind picks the core binding for space. plan is the tiling computed over
// the same space before binding. It returns the binding and the index of
// the first dim left outside the bound axis.
func Bind(space schedule.IterSpace, plan schedule.AxisPlan, cores int, opts Options) (schedule.CoreBinding, int) {
	cores = max(cores, 1)
	rank := space.Rank()
	maxFused := opts.MaxFused
	if maxFused <= 0 || maxFused > rank {
		maxFused = rank
	}

	out := opts.OutDims
	if len(out) != rank {
		out = space.Dims
	}

	var (
		b    schedule.CoreBinding
		k    int
		rest int
	)
	switch {
	case space.Dims[0] >= cores:
		k = 1
		b = schedule.CoreBinding{Extent: space.Dims[0], Parts: cores, Rule: schedule.RuleLeadingAxis}
		rest = prod(out[1:])
	case tileOuterTrips(space, plan, maxFused) >= cores:
		k = plan.Axis + 1
		b = schedule.CoreBinding{
			Extent:     tileOuterTrips(space, plan, maxFused),
			Parts:      cores,
			Rule:       schedule.RuleTileOuter,
			TileFactor: plan.Factor,
		}
		rest = min(plan.Factor, out[plan.Axis]) * prod(out[plan.Axis+1:])
	default:
		k = maxFused
		extent := prod(space.Dims[:maxFused])
		b = schedule.CoreBinding{Extent: extent, Parts: extent, Rule: schedule.RuleFullFusion}
		fused := 1
		for i := 0; i < maxFused; i++ {
			fused *= space.Dims[i]
			if fused >= cores {
				k = i + 1
				b = schedule.CoreBinding{Extent: fused, Parts: cores, Rule: schedule.RuleFusedAxes}
				break
			}
		}
		rest = prod(out[k:])
	}
	b.Dims = k
	b.Axes = space.AxesOf(0, k)

	// Each core must write at least one whole block.
	if opts.BlockBytes > 0 && opts.Width > 0 && rest*opts.Width < opts.BlockBytes {
		blockElems := ceilDiv(opts.BlockBytes, opts.Width)
		m := ceilDiv(blockElems, max(rest, 1))
		b.Parts = min(b.Parts, max(1, b.Extent/m))
	}
	b.PerCore = ceilDiv(b.Extent, b.Parts)
	return b, k
}

// tileOuterTrips counts the iterations outside the tile of plan, or zero
// when the tile loop may not be bound.
func tileOuterTrips(space schedule.IterSpace, plan schedule.AxisPlan, maxFused int) int {
	if plan.Whole || plan.Axis == 0 || plan.Axis >= maxFused || plan.Factor <= 0 {
		return 0
	}
	return prod(space.Dims[:plan.Axis]) * plan.Tiles()
}

// PerCoreSpace is the iteration space one core walks under b.
func PerCoreSpace(space schedule.IterSpace, b schedule.CoreBinding) schedule.IterSpace {
	out := schedule.IterSpace{
		Dims: []int{b.PerCore},
		Axes: [][]int{append([]int(nil), b.Axes...)},
	}
	if b.Rule == schedule.RuleTileOuter {
		a := b.Dims - 1
		out.Dims = append(out.Dims, min(b.TileFactor, space.Dims[a]))
		out.Axes = append(out.Axes, append([]int(nil), space.Axes[a]...))
	}
	for i := b.Dims; i < space.Rank(); i++ {
		out.Dims = append(out.Dims, space.Dims[i])
		out.Axes = append(out.Axes, append([]int(nil), space.Axes[i]...))
	}
	return out
}

// SingleCore is the space of an unbound schedule.
func SingleCore(space schedule.IterSpace) schedule.IterSpace {
	out := schedule.IterSpace{
		Dims: append([]int(nil), space.Dims...),
		Axes: make([][]int, len(space.Axes)),
	}
	for i, axes := range space.Axes {
		out.Axes[i] = append([]int(nil), axes...)
	}
	return out
}

func prod(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
