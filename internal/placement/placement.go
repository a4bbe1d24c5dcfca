// Package placement attaches staged buffers to loops of the root stage.
package placement

import (
	"github.com/samcharles93/tessera/internal/graph"
	"github.com/samcharles93/tessera/internal/schedule"
)

// Input is one placement problem.
type Input struct {
	Stages []*schedule.Stage
	Root   string
	Nest   schedule.LoopNest
	// Full is the tensor shape the tile loops iterate.
	Full graph.Shape
	// Pin keeps a stage at the default level even if it is loop invariant.
	Pin func(*schedule.Stage) bool
}

// Plan attaches every attachable stage exactly once. Stages default to the
// innermost tile loop; a stage that does not vary along the loops around
// that level is hoisted to the outermost loop it still varies along.
func Plan(in Input) ([]schedule.ComputeAtEdge, error) {
	if len(in.Nest.Loops) == 0 {
		return nil, schedule.Errorf(schedule.ErrInvalidGraphShape, "root %q has no loop nest", in.Root)
	}
	def := in.Nest.DefaultLevel()
	edges := make([]schedule.ComputeAtEdge, 0, len(in.Stages))
	for _, st := range in.Stages {
		if !schedule.Attachable(st, in.Root) {
			continue
		}
		level := def
		if in.Pin == nil || !in.Pin(st) {
			level = Hoist(in.Nest, def, st.Shape, in.Full)
		}
		edges = append(edges, schedule.ComputeAtEdge{
			Stage:    st.Name,
			Consumer: in.Root,
			Level:    in.Nest.Loops[level].Name,
			Hoisted:  level < def,
		})
	}
	return edges, nil
}

// Hoist walks outward from level past every loop along which shape is
// constant. The block loop is never passed.
func Hoist(nest schedule.LoopNest, level int, shape, full graph.Shape) int {
	if shape.Equal(full) || len(shape) != len(full) {
		return level
	}
	for l := level; l > 0; l-- {
		if varies(nest.Loops[l], shape) {
			break
		}
		level = l - 1
	}
	return level
}

func varies(l schedule.Loop, shape graph.Shape) bool {
	for _, ax := range l.Axes {
		if ax < len(shape) && shape[ax] != 1 {
			return true
		}
	}
	return false
}
