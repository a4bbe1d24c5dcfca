// Package isa maps operation kinds to vector instruction mnemonics.
package isa

import (
	"fmt"
	"math"
	"slices"

	"github.com/x448/float16"

	"github.com/samcharles93/tessera/internal/capability"
	"github.com/samcharles93/tessera/internal/graph"
	"github.com/samcharles93/tessera/internal/schedule"
)

// DMA mnemonics for staged data movement.
const (
	DMACopy      = "dma_copy"
	DMAAtomicAdd = "dma_atomic_add"
)

// Mode carries the variant selectors of one lookup.
type Mode struct {
	// From is the source type of a conversion.
	From  graph.DType
	Round graph.RoundMode
	// LastAxis is set when a reduction covers the innermost axis.
	LastAxis bool
}

var (
	floats  = []graph.DType{graph.Float16, graph.Float32}
	numeric = []graph.DType{graph.Float16, graph.Float32, graph.Int32}
)

type elementwise struct {
	mnemonic string
	dtypes   []graph.DType
}

var elementwiseTable = map[graph.OpKind]elementwise{
	graph.OpAdd:   {"vadd", numeric},
	graph.OpSub:   {"vsub", numeric},
	graph.OpMul:   {"vmul", numeric},
	graph.OpDiv:   {"vdiv", floats},
	graph.OpMax:   {"vmax", numeric},
	graph.OpMin:   {"vmin", numeric},
	graph.OpAdds:  {"vadds", numeric},
	graph.OpMuls:  {"vmuls", numeric},
	graph.OpSqrt:  {"vsqrt", floats},
	graph.OpRsqrt: {"vrsqrt", floats},
	graph.OpRec:   {"vrec", floats},
	graph.OpAbs:   {"vabs", floats},
	graph.OpExp:   {"vexp", floats},
	graph.OpLog:   {"vln", floats},
	graph.OpRelu:  {"vrelu", numeric},
}

// reduceTable holds the cross-lane and lane-wise forms of each reduction.
var reduceTable = map[graph.OpKind][2]string{
	graph.OpReduceSum: {"vcadd", "vadd"},
	graph.OpReduceMax: {"vcmax", "vmax"},
	graph.OpReduceMin: {"vcmin", "vmin"},
}

type convKey struct {
	from, to graph.DType
}

type conv struct {
	mnemonic string
	// rounded conversions append a rounding suffix.
	rounded bool
	// minGen is the first generation exposing directed rounding.
	minGen int
}

var convTable = map[convKey]conv{
	{graph.Float32, graph.Float16}: {mnemonic: "vconv_f322f16"},
	{graph.Float16, graph.Float32}: {mnemonic: "vconv_f162f32"},
	{graph.Float16, graph.Int8}:    {mnemonic: "vconv_f162s8", rounded: true, minGen: 2},
	{graph.Float16, graph.UInt8}:   {mnemonic: "vconv_f162u8", rounded: true, minGen: 2},
	{graph.Float16, graph.Int32}:   {mnemonic: "vconv_f162s32", rounded: true, minGen: 2},
	{graph.Float32, graph.Int32}:   {mnemonic: "vconv_f322s32", rounded: true, minGen: 1},
	{graph.Int8, graph.Float16}:    {mnemonic: "vconv_s82f16"},
	{graph.UInt8, graph.Float16}:   {mnemonic: "vconv_u82f16"},
	{graph.Int32, graph.Float32}:   {mnemonic: "vconv_s322f32"},
}

var roundSuffix = map[graph.RoundMode]string{
	graph.RoundNearest: "a",
	graph.RoundFloor:   "f",
	graph.RoundCeil:    "c",
	graph.RoundTrunc:   "z",
}

// Lookup returns the instruction serving kind on dt. A missing entry is an
// ErrInstructionMappingMiss.
func Lookup(kind graph.OpKind, dt graph.DType, mode Mode, c capability.Capability) (string, error) {
	switch {
	case kind.IsElementwise() && !kind.IsCast():
		e, ok := elementwiseTable[kind]
		if ok && slices.Contains(e.dtypes, dt) {
			return e.mnemonic, nil
		}
	case kind.IsBroadcast():
		if dt.Size() > 0 {
			return "vector_dup", nil
		}
	case kind.IsReduce():
		r, ok := reduceTable[kind]
		if ok && slices.Contains(floats, dt) {
			if mode.LastAxis {
				return r[0], nil
			}
			return r[1], nil
		}
	case kind.IsCast():
		if m, ok := lookupConv(mode.From, dt, mode.Round, c); ok {
			return m, nil
		}
		return "", schedule.Errorf(schedule.ErrInstructionMappingMiss,
			"no conversion %s->%s with rounding %q on generation %d", mode.From, dt, mode.Round, c.Generation)
	}
	return "", schedule.Errorf(schedule.ErrInstructionMappingMiss, "no instruction for %s on %s", kind, dt)
}

func lookupConv(from, to graph.DType, round graph.RoundMode, c capability.Capability) (string, bool) {
	if from == to {
		return "vcopy", true
	}
	if from == graph.Float32 && to == graph.Int8 {
		if !c.DirectF32ToS8 || round > graph.RoundNearest {
			return "", false
		}
		return "vconv_f322s8" + roundSuffix[round], true
	}
	cv, ok := convTable[convKey{from, to}]
	if !ok {
		return "", false
	}
	if !cv.rounded {
		return cv.mnemonic, round == graph.RoundNone
	}
	switch round {
	case graph.RoundNone:
		if to == graph.Int32 {
			return cv.mnemonic + "z", true
		}
		return cv.mnemonic, true
	case graph.RoundNearest:
		if to == graph.Int32 {
			return cv.mnemonic + "r", true
		}
		return cv.mnemonic + "a", true
	default:
		if c.Generation < cv.minGen {
			return "", false
		}
		return cv.mnemonic + roundSuffix[round], true
	}
}

// Immediate encodes a scalar operand in the element type it is applied to.
func Immediate(v float64, dt graph.DType) (string, error) {
	switch dt {
	case graph.Float16:
		h := float16.Fromfloat32(float32(v))
		if (h.IsInf(0) || h.IsNaN()) && !math.IsInf(v, 0) && !math.IsNaN(v) {
			return "", schedule.Errorf(schedule.ErrUnsupportedPattern, "scalar %g does not fit float16", v)
		}
		return fmt.Sprintf("0x%04x", h.Bits()), nil
	case graph.Float32:
		f := float32(v)
		if math.IsInf(float64(f), 0) && !math.IsInf(v, 0) {
			return "", schedule.Errorf(schedule.ErrUnsupportedPattern, "scalar %g does not fit float32", v)
		}
		return fmt.Sprintf("0x%08x", math.Float32bits(f)), nil
	case graph.Int32:
		if v != math.Trunc(v) || v > math.MaxInt32 || v < math.MinInt32 {
			return "", schedule.Errorf(schedule.ErrUnsupportedPattern, "scalar %g is not an int32", v)
		}
		return fmt.Sprintf("%d", int32(v)), nil
	default:
		return "", schedule.Errorf(schedule.ErrUnsupportedPattern, "no immediate encoding for %s", dt)
	}
}
