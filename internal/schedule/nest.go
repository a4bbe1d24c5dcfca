package schedule

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samcharles93/tessera/internal/graph"
)

// IterSpace is an iteration space in loop order. Each dim records the
// tensor axes it iterates; fused dims carry several.
type IterSpace struct {
	Dims []int   `json:"dims"`
	Axes [][]int `json:"axes"`
}

// NewSpace orders the axes of shape. A nil order keeps the declared order.
func NewSpace(shape graph.Shape, order []int) (IterSpace, error) {
	if !shape.Static() {
		return IterSpace{}, Errorf(ErrInvalidGraphShape, "symbolic shape %s cannot be tiled statically", shape)
	}
	if order == nil {
		order = make([]int, len(shape))
		for i := range order {
			order[i] = i
		}
	}
	if len(order) != len(shape) {
		return IterSpace{}, Errorf(ErrInvalidGraphShape, "axis order %v does not match rank %d", order, len(shape))
	}
	seen := make([]bool, len(shape))
	sp := IterSpace{Dims: make([]int, len(order)), Axes: make([][]int, len(order))}
	for i, ax := range order {
		if ax < 0 || ax >= len(shape) || seen[ax] {
			return IterSpace{}, Errorf(ErrInvalidGraphShape, "axis order %v is not a permutation", order)
		}
		seen[ax] = true
		if shape[ax] < 1 {
			return IterSpace{}, Errorf(ErrInvalidGraphShape, "axis %d has extent %d", ax, shape[ax])
		}
		sp.Dims[i] = shape[ax]
		sp.Axes[i] = []int{ax}
	}
	return sp, nil
}

func (s IterSpace) Rank() int { return len(s.Dims) }

func (s IterSpace) Elems() int {
	n := 1
	for _, d := range s.Dims {
		n *= d
	}
	return n
}

// AxesOf flattens the tensor axes of dims [from, to).
func (s IterSpace) AxesOf(from, to int) []int {
	var out []int
	for i := from; i < to && i < len(s.Axes); i++ {
		out = append(out, s.Axes[i]...)
	}
	return out
}

// LoopNest is the finalized loop nest of the root stage, outermost first.
// Loop 0 is always the block loop.
type LoopNest struct {
	Loops []Loop `json:"loops"`
}

func (n LoopNest) Index(name string) int {
	for i, l := range n.Loops {
		if l.Name == name {
			return i
		}
	}
	return -1
}

// DefaultLevel is the innermost tiling-introduced loop, else the per-core
// loop, else the block loop.
func (n LoopNest) DefaultLevel() int {
	core := -1
	for i := len(n.Loops) - 1; i >= 0; i-- {
		switch n.Loops[i].Role {
		case RoleTileOuter:
			return i
		case RoleCore:
			if core < 0 {
				core = i
			}
		}
	}
	if core >= 0 {
		return core
	}
	return 0
}

// TripCount is how often a stage attached at level runs on one core.
func (n LoopNest) TripCount(level int) int {
	trips := 1
	for i := 1; i <= level && i < len(n.Loops); i++ {
		trips *= n.Loops[i].Extent
	}
	return trips
}

func (n LoopNest) String() string {
	parts := make([]string, len(n.Loops))
	for i, l := range n.Loops {
		parts[i] = fmt.Sprintf("%s[%d]", l.Name, l.Extent)
	}
	return strings.Join(parts, " > ")
}

func axisLabel(axes []int) string {
	var b strings.Builder
	b.WriteString("ax")
	for i, a := range axes {
		if i > 0 {
			b.WriteByte('_')
		}
		b.WriteString(strconv.Itoa(a))
	}
	return b.String()
}

// BuildNest lays out the loops of a per-core space under the block loop.
// plan must be expressed over perCore.
func BuildNest(perCore IterSpace, binding *CoreBinding, plan AxisPlan) LoopNest {
	block := Loop{Name: "block", Extent: 1, Role: RoleBlock}
	if binding != nil {
		block.Extent = binding.Parts
		block.Axes = append([]int(nil), binding.Axes...)
	}
	loops := []Loop{block}
	for j, dim := range perCore.Dims {
		axes := append([]int(nil), perCore.Axes[j]...)
		label := axisLabel(axes)
		switch {
		case !plan.Whole && j == plan.Axis:
			loops = append(loops,
				Loop{Name: label + ".o", Extent: plan.Tiles(), Role: RoleTileOuter, Axes: axes},
				Loop{Name: label + ".i", Extent: plan.Factor, Role: RoleTileInner, Axes: axes},
			)
		case j == 0 && binding != nil:
			loops = append(loops, Loop{Name: label + ".c", Extent: dim, Role: RoleCore, Axes: axes})
		case plan.Whole || j > plan.Axis:
			loops = append(loops, Loop{Name: label, Extent: dim, Role: RoleInner, Axes: axes})
		default:
			loops = append(loops, Loop{Name: label, Extent: dim, Role: RoleOuter, Axes: axes})
		}
	}
	return LoopNest{Loops: loops}
}
