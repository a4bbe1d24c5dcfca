package kernels

import (
	"github.com/samcharles93/tessera/internal/graph"
	"github.com/samcharles93/tessera/internal/schedule"
)

// Build constructs the graph of a kernel over an input of shape and dt and
// returns its outputs, primary output first.
func Build(shape graph.Shape, dt graph.DType, a Attrs) ([]*graph.Node, error) {
	if !shape.Static() {
		return nil, schedule.Errorf(schedule.ErrInvalidGraphShape, "kernel input shape %s must be static", shape)
	}
	switch a := a.(type) {
	case QuantAttrs:
		return Quant(shape, dt, a)
	case BNUpdateAttrs:
		return BNUpdate(shape, a)
	case GroupNormAttrs:
		return GroupNormReduce(shape, dt, a)
	case nil:
		return nil, schedule.Errorf(schedule.ErrUnsupportedPattern, "kernel without attributes")
	}
	return nil, schedule.Errorf(schedule.ErrUnsupportedPattern, "no builder for pattern %q", a.Pattern())
}

// Quant builds y = cast_s8(x * scale [* scale] + offset) over an NC1HWC0
// input. A float32 input is narrowed to float16 first.
func Quant(shape graph.Shape, dt graph.DType, a QuantAttrs) ([]*graph.Node, error) {
	if len(shape) != 5 {
		return nil, schedule.Errorf(schedule.ErrInvalidGraphShape, "quant input must be rank 5 (N,C1,H,W,C0), got %s", shape)
	}
	if dt != graph.Float16 && dt != graph.Float32 {
		return nil, schedule.Errorf(schedule.ErrInvalidGraphShape, "quant input must be float16 or float32, got %s", dt)
	}
	x := graph.Placeholder("x", shape, dt)
	h := x
	if dt == graph.Float32 {
		h = graph.Cast("x_f16", x, graph.Float16, graph.RoundNone)
	}
	scaled := graph.Scalar("scaled", graph.OpMuls, h, a.Scale)
	if a.SqrtMode {
		scaled = graph.Scalar("scaled_sqrt", graph.OpMuls, scaled, a.Scale)
	}
	shifted := graph.Scalar("shifted", graph.OpAdds, scaled, a.Offset)
	y := graph.Cast("y", shifted, graph.Int8, a.Round)
	return []*graph.Node{y}, nil
}

// BNUpdate builds the training batch-norm update over an NC1HWC0 float32
// input. Outputs are y, mean, variance, batch_mean and batch_variance.
func BNUpdate(shape graph.Shape, a BNUpdateAttrs) ([]*graph.Node, error) {
	if len(shape) != 5 {
		return nil, schedule.Errorf(schedule.ErrInvalidGraphShape, "bn update input must be rank 5 (N,C1,H,W,C0), got %s", shape)
	}
	num := float64(shape[0] * shape[2] * shape[3])
	if num < 2 {
		return nil, schedule.Errorf(schedule.ErrInvalidGraphShape, "bn update needs at least two elements per channel, got %g", num)
	}
	stats := graph.Shape{1, shape[1], 1, 1, shape[4]}
	f32 := graph.Float32

	x := graph.Placeholder("x", shape, f32)
	sum := graph.Placeholder("sum", stats, f32)
	squareSum := graph.Placeholder("square_sum", stats, f32)
	scale := graph.Placeholder("scale", stats, f32)
	offset := graph.Placeholder("offset", stats, f32)
	mean := graph.Placeholder("mean", stats, f32)
	variance := graph.Placeholder("variance", stats, f32)

	batchMean := graph.Scalar("batch_mean", graph.OpMuls, sum, 1/num)
	meanSq := graph.Binary("mean_sq", graph.OpMul, batchMean, batchMean)
	ex2 := graph.Scalar("ex2", graph.OpMuls, squareSum, 1/num)
	biased := graph.Binary("var_biased", graph.OpSub, ex2, meanSq)
	batchVar := graph.Scalar("batch_variance", graph.OpMuls, biased, num/(num-1))

	meanOut := graph.Binary("mean_out", graph.OpAdd,
		graph.Scalar("mean_keep", graph.OpMuls, mean, 1-a.Factor),
		graph.Scalar("mean_new", graph.OpMuls, batchMean, a.Factor))
	varOut := graph.Binary("variance_out", graph.OpAdd,
		graph.Scalar("variance_keep", graph.OpMuls, variance, 1-a.Factor),
		graph.Scalar("variance_new", graph.OpMuls, batchVar, a.Factor))

	rstd := graph.Unary("rstd", graph.OpRsqrt, graph.Scalar("var_eps", graph.OpAdds, biased, a.Epsilon))
	centered := graph.Binary("centered", graph.OpSub, x, graph.Broadcast("mean_b", batchMean, shape))
	normed := graph.Binary("normed", graph.OpMul, centered, graph.Broadcast("rstd_b", rstd, shape))
	scaledY := graph.Binary("scaled_y", graph.OpMul, normed, graph.Broadcast("scale_b", scale, shape))
	y := graph.Binary("y", graph.OpAdd, scaledY, graph.Broadcast("offset_b", offset, shape))

	return []*graph.Node{y, meanOut, varOut, batchMean, batchVar}, nil
}

// GroupNormReduce builds the per-group sum and square sum of x. A rank-4
// input is split into groups along its channel axis first.
func GroupNormReduce(shape graph.Shape, dt graph.DType, a GroupNormAttrs) ([]*graph.Node, error) {
	if a.Format != FormatNCHW && a.Format != FormatNHWC {
		return nil, schedule.Errorf(schedule.ErrInvalidGraphShape, "group norm format must be NCHW or NHWC, got %q", a.Format)
	}
	if a.NumGroups < 1 {
		return nil, schedule.Errorf(schedule.ErrInvalidGraphShape, "group norm needs at least one group, got %d", a.NumGroups)
	}
	grouped, err := GroupedShape(shape, a)
	if err != nil {
		return nil, err
	}
	if dt != graph.Float16 && dt != graph.Float32 {
		return nil, schedule.Errorf(schedule.ErrInvalidGraphShape, "group norm input must be float16 or float32, got %s", dt)
	}

	x := graph.Placeholder("x", grouped, dt)
	x32 := x
	if dt == graph.Float16 {
		x32 = graph.Cast("x_f32", x, graph.Float32, graph.RoundNone)
	}
	axes := a.ReduceAxes()
	sum := graph.Reduce("sum", graph.OpReduceSum, x32, axes...)
	sq := graph.Binary("x_sq", graph.OpMul, x32, x32)
	squareSum := graph.Reduce("square_sum", graph.OpReduceSum, sq, axes...)
	return []*graph.Node{sum, squareSum}, nil
}

// GroupedShape returns the rank-5 grouped form of a group-norm input.
func GroupedShape(shape graph.Shape, a GroupNormAttrs) (graph.Shape, error) {
	switch len(shape) {
	case 5:
		if shape[a.GroupAxis()] != a.NumGroups {
			return nil, schedule.Errorf(schedule.ErrInvalidGraphShape,
				"grouped input %s has %d groups on axis %d, want %d", shape, shape[a.GroupAxis()], a.GroupAxis(), a.NumGroups)
		}
		return shape.Clone(), nil
	case 4:
		c := shape[1]
		if a.Format == FormatNHWC {
			c = shape[3]
		}
		if c%a.NumGroups != 0 {
			return nil, schedule.Errorf(schedule.ErrInvalidGraphShape, "%d channels do not split into %d groups", c, a.NumGroups)
		}
		d := c / a.NumGroups
		if a.Format == FormatNHWC {
			return graph.Shape{shape[0], shape[1], shape[2], a.NumGroups, d}, nil
		}
		return graph.Shape{shape[0], a.NumGroups, d, shape[2], shape[3]}, nil
	}
	return nil, schedule.Errorf(schedule.ErrInvalidGraphShape, "group norm input must be rank 4 or 5, got %s", shape)
}
