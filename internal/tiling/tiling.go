// Package tiling picks the split axis and factor that make one tile of an
// iteration space fit the scratchpad.
package tiling

import (
	"github.com/samcharles93/tessera/internal/schedule"
)

// Request describes one tiling problem. Shape is in loop order.
type Request struct {
	Shape []int
	// Width is the element size in bytes of the widest live buffer.
	Width int
	// Live is the number of full-size buffers resident at once.
	Live     int
	Capacity int64
	// DoubleBuffer halves the budget to leave room for a second copy.
	DoubleBuffer bool
	// BlockBytes is the DMA burst; innermost splits stay aligned to it.
	BlockBytes int
	// KeepInner innermost dims must never be split.
	KeepInner int
	// Exact requires a factor that divides the split axis.
	Exact bool
	// PerCoreLimit clamps the factor on axis 0 when a core binding has
	// already split the leading axis. Zero means no limit.
	PerCoreLimit int
}

// Budget is the element count one tile may hold.
func Budget(req Request) int {
	width := max(req.Width, 1)
	live := max(req.Live, 1)
	b := req.Capacity / int64(width*live)
	if req.DoubleBuffer {
		b /= 2
	}
	return int(b)
}

// Plan chooses the split for req. A space that fits entirely returns a
// whole plan on axis 0 with factor 1.
func Plan(req Request) (schedule.AxisPlan, error) {
	shape := req.Shape
	if len(shape) == 0 {
		shape = []int{1}
	}
	total := 1
	for i, d := range shape {
		if d < 1 {
			return schedule.AxisPlan{}, schedule.Errorf(schedule.ErrInvalidGraphShape, "dim %d has extent %d", i, d)
		}
		total *= d
	}

	budget := Budget(req)
	if budget < 1 {
		return schedule.AxisPlan{}, schedule.Errorf(schedule.ErrCapacityInfeasible,
			"capacity %d bytes holds no element of width %d across %d buffers", req.Capacity, req.Width, req.Live)
	}
	if total <= budget {
		return schedule.AxisPlan{Axis: 0, Factor: 1, Extent: shape[0], Inner: total / shape[0], Budget: budget, Whole: true}, nil
	}

	n := len(shape)
	inner := 1
	axis := 0
	for i := n - 1; i >= 0; i-- {
		if inner*shape[i] >= budget {
			axis = i
			break
		}
		inner *= shape[i]
	}

	extent := shape[axis]
	if axis >= n-req.KeepInner && inner*extent > budget {
		return schedule.AxisPlan{}, schedule.Errorf(schedule.ErrCapacityInfeasible,
			"innermost %d dims need %d elements, budget is %d", req.KeepInner, inner*extent, budget)
	}
	block := blockElems(req)
	innermost := axis == n-1
	if innermost && budget < block {
		return schedule.AxisPlan{}, schedule.Errorf(schedule.ErrCapacityInfeasible,
			"budget of %d elements is below one %d byte block", budget, req.BlockBytes)
	}

	fmax := min(extent, budget/inner)
	if axis == 0 && req.PerCoreLimit > 0 {
		fmax = min(fmax, req.PerCoreLimit)
	}
	factor, err := pickFactor(extent, fmax, innermost, block, req.Exact)
	if err != nil {
		return schedule.AxisPlan{}, err
	}
	return schedule.AxisPlan{Axis: axis, Factor: factor, Extent: extent, Inner: inner, Budget: budget}, nil
}

func blockElems(req Request) int {
	if req.BlockBytes <= 0 || req.Width <= 0 {
		return 1
	}
	return max(req.BlockBytes/req.Width, 1)
}

// pickFactor searches downward from fmax for a divisor of extent, so the
// tiles cover the axis without a ragged tail. Outside exact mode only
// divisors in [ceil(fmax/2), fmax] are taken; below that window fmax is kept
// and the last tile is ragged.
func pickFactor(extent, fmax int, innermost bool, block int, exact bool) (int, error) {
	if fmax >= extent {
		return extent, nil
	}
	lo := ceilDiv(fmax, 2)
	if innermost && block > 1 {
		for f := fmax / block * block; f >= block && f >= lo; f -= block {
			if extent%f == 0 {
				return f, nil
			}
		}
	}
	if exact {
		for f := fmax; f >= 2; f-- {
			if extent%f == 0 {
				return f, nil
			}
		}
		if fmax == 1 {
			return 1, nil
		}
		return 0, schedule.Errorf(schedule.ErrUnsupportedPattern,
			"extent %d has no divisor in [2,%d]", extent, fmax)
	}
	for f := fmax; f >= lo && f >= 1; f-- {
		if extent%f == 0 {
			return f, nil
		}
	}
	if innermost && fmax >= block {
		return fmax / block * block, nil
	}
	return fmax, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
