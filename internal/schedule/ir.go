// Package schedule holds the schedule IR handed to the code generator:
// staged buffers, the tiling plan, the core binding, the finalized loop
// nest, compute-at attachments, instruction bindings and double-buffer
// flags.
package schedule

import (
	"fmt"

	"github.com/samcharles93/tessera/internal/graph"
)

type Scope uint8

const (
	ScopeGlobal Scope = iota
	ScopeLocal
)

func (s Scope) String() string {
	if s == ScopeLocal {
		return "local.scratch"
	}
	return "global"
}

func (s Scope) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type StageKind uint8

const (
	StageCompute StageKind = iota
	StageRead
	StageWrite
	StageReduceLocal
	StageReduceGlobal
)

func (k StageKind) String() string {
	switch k {
	case StageRead:
		return "read"
	case StageWrite:
		return "write"
	case StageReduceLocal:
		return "reduce-local"
	case StageReduceGlobal:
		return "reduce-global"
	default:
		return "compute"
	}
}

func (k StageKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Stage is a tensor materialized in a memory scope.
type Stage struct {
	Name   string      `json:"name"`
	Tensor string      `json:"tensor"`
	Shape  graph.Shape `json:"shape"`
	DType  graph.DType `json:"dtype"`
	Scope  Scope       `json:"scope"`
	Kind   StageKind   `json:"kind"`
	// Inline stages are folded into their consumer and never allocated.
	Inline bool `json:"inline,omitempty"`
	// ReuseOf names the writer stage whose storage this stage shares.
	ReuseOf string `json:"reuse_of,omitempty"`
	Writer  bool   `json:"writer,omitempty"`
	Output  bool   `json:"output,omitempty"`
}

// Allocated reports whether the stage owns scratchpad storage.
func (s *Stage) Allocated() bool {
	return s.Scope == ScopeLocal && !s.Inline && s.ReuseOf == ""
}

// AxisPlan splits one axis of an iteration space.
type AxisPlan struct {
	Axis   int `json:"axis"`
	Factor int `json:"factor"`
	Extent int `json:"extent"`
	// Inner is the element count of the dims strictly inside Axis.
	Inner  int `json:"inner"`
	Budget int `json:"budget"`
	// Whole marks a plan where the full space fits in one tile.
	Whole bool `json:"whole,omitempty"`
}

// Tiles is the number of tiles along the split axis.
func (p AxisPlan) Tiles() int {
	if p.Whole || p.Factor <= 0 {
		return 1
	}
	return (p.Extent + p.Factor - 1) / p.Factor
}

func (p AxisPlan) TileElems() int {
	if p.Whole {
		return p.Extent * p.Inner
	}
	return p.Factor * p.Inner
}

func (p AxisPlan) String() string {
	if p.Whole {
		return "whole"
	}
	return fmt.Sprintf("axis %d factor %d (%d tiles of %d elems, budget %d)", p.Axis, p.Factor, p.Tiles(), p.TileElems(), p.Budget)
}

type BindRule uint8

const (
	RuleLeadingAxis BindRule = iota + 1
	RuleTileOuter
	RuleFusedAxes
	RuleFullFusion
	RuleReduceSplit
)

func (r BindRule) String() string {
	switch r {
	case RuleLeadingAxis:
		return "leading-axis"
	case RuleTileOuter:
		return "tile-outer"
	case RuleFusedAxes:
		return "fused-axes"
	case RuleFullFusion:
		return "full-fusion"
	case RuleReduceSplit:
		return "reduce-split"
	default:
		return "none"
	}
}

func (r BindRule) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// CoreBinding is the single hardware-parallel axis of a schedule.
type CoreBinding struct {
	// Dims is the number of leading iteration-space dims fused into the axis.
	Dims int   `json:"dims"`
	Axes []int `json:"axes"`
	// Extent is the fused extent; for RuleTileOuter it counts tiles.
	Extent  int      `json:"extent"`
	Parts   int      `json:"parts"`
	PerCore int      `json:"per_core"`
	Rule    BindRule `json:"rule"`
	// TileFactor is the split factor folded into a RuleTileOuter binding.
	TileFactor int `json:"tile_factor,omitempty"`
}

type LoopRole uint8

const (
	RoleBlock LoopRole = iota
	RoleCore
	RoleOuter
	RoleTileOuter
	RoleTileInner
	RoleInner
)

func (r LoopRole) String() string {
	switch r {
	case RoleBlock:
		return "block"
	case RoleCore:
		return "core"
	case RoleOuter:
		return "outer"
	case RoleTileOuter:
		return "tile-outer"
	case RoleTileInner:
		return "tile-inner"
	default:
		return "inner"
	}
}

func (r LoopRole) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

type Loop struct {
	Name   string   `json:"name"`
	Extent int      `json:"extent"`
	Role   LoopRole `json:"role"`
	// Axes are the tensor axes iterated by the loop.
	Axes []int `json:"axes,omitempty"`
}

// ComputeAtEdge attaches a stage inside a loop of its consumer.
type ComputeAtEdge struct {
	Stage    string `json:"stage"`
	Consumer string `json:"consumer"`
	Level    string `json:"level"`
	Hoisted  bool   `json:"hoisted,omitempty"`
}

type InstructionBinding struct {
	Tensor      string       `json:"tensor"`
	Kind        graph.OpKind `json:"kind"`
	DType       graph.DType  `json:"dtype"`
	Instruction string       `json:"instruction"`
	// Immediate is the encoded scalar operand, if any.
	Immediate string `json:"immediate,omitempty"`
}

type DoubleBufferFlag struct {
	Stage     string `json:"stage"`
	Enabled   bool   `json:"enabled"`
	TripCount int    `json:"trip_count"`
	Reason    string `json:"reason"`
}

type ReduceMode uint8

const (
	ReduceDataParallel ReduceMode = iota
	ReduceAtomicSplit
	ReduceSingleCore
)

func (m ReduceMode) String() string {
	switch m {
	case ReduceAtomicSplit:
		return "atomic-split"
	case ReduceSingleCore:
		return "single-core"
	default:
		return "data-parallel"
	}
}

func (m ReduceMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

type Layout uint8

const (
	RowMajor Layout = iota
	ChannelMajor
)

func (l Layout) String() string {
	if l == ChannelMajor {
		return "channel-major"
	}
	return "row-major"
}

func (l Layout) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// ReductionPlan records how a reduction is spread over cores.
type ReductionPlan struct {
	Mode       ReduceMode `json:"mode"`
	Layout     Layout     `json:"layout"`
	ReduceAxes []int      `json:"reduce_axes"`
	// SplitAxis is the tensor axis factored across cores, -1 if none.
	SplitAxis int      `json:"split_axis"`
	Parts     int      `json:"parts"`
	Local     []string `json:"local,omitempty"`
	Global    []string `json:"global,omitempty"`
}

// Schedule is the complete, immutable result of one scheduling call.
type Schedule struct {
	ID           string               `json:"id,omitempty"`
	Pattern      string               `json:"pattern"`
	Capability   string               `json:"capability"`
	Root         string               `json:"root"`
	Stages       []*Stage             `json:"stages"`
	Space        IterSpace            `json:"space"`
	PerCore      IterSpace            `json:"per_core"`
	Tiling       AxisPlan             `json:"tiling"`
	Binding      *CoreBinding         `json:"binding,omitempty"`
	Nest         LoopNest             `json:"nest"`
	Attach       []ComputeAtEdge      `json:"attach"`
	Instructions []InstructionBinding `json:"instructions"`
	DoubleBuffer []DoubleBufferFlag   `json:"double_buffer"`
	Reduction    *ReductionPlan       `json:"reduction,omitempty"`
	Trail        []Phase              `json:"trail"`
}

func (s *Schedule) Stage(name string) *Stage {
	for _, st := range s.Stages {
		if st.Name == name {
			return st
		}
	}
	return nil
}

// BlockDim is the number of cores the schedule launches.
func (s *Schedule) BlockDim() int {
	if s.Binding == nil {
		return 1
	}
	return s.Binding.Parts
}

func (s *Schedule) Edge(stage string) (ComputeAtEdge, bool) {
	for _, e := range s.Attach {
		if e.Stage == stage {
			return e, true
		}
	}
	return ComputeAtEdge{}, false
}

func (s *Schedule) Instruction(tensor string) (InstructionBinding, bool) {
	for _, ib := range s.Instructions {
		if ib.Tensor == tensor {
			return ib, true
		}
	}
	return InstructionBinding{}, false
}
