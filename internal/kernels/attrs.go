// Package kernels builds the reference compute graphs of the supported
// kernel patterns and defines the attributes each pattern is built from.
package kernels

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/samcharles93/tessera/internal/graph"
	"github.com/samcharles93/tessera/internal/schedule"
)

// Pattern names.
const (
	PatternQuant    = "quant"
	PatternBNUpdate = "bn_update"
	PatternGNReduce = "gn_reduce"
)

// Patterns lists every supported pattern.
func Patterns() []string {
	return []string{PatternBNUpdate, PatternGNReduce, PatternQuant}
}

// Attrs are the per-pattern attributes of a kernel.
type Attrs interface {
	Pattern() string
}

// QuantAttrs configure an affine int8 quantization.
type QuantAttrs struct {
	Scale  float64 `json:"scale" yaml:"scale"`
	Offset float64 `json:"offset" yaml:"offset"`
	// SqrtMode applies the scale twice.
	SqrtMode bool            `json:"sqrt_mode" yaml:"sqrt_mode"`
	Round    graph.RoundMode `json:"round_mode" yaml:"round_mode"`
	// InputPinned marks an input held in a reserved memory region; the
	// kernel then runs on a single core.
	InputPinned bool `json:"input_pinned" yaml:"input_pinned"`
}

func (QuantAttrs) Pattern() string { return PatternQuant }

// BNUpdateAttrs configure a training batch-norm statistics update.
type BNUpdateAttrs struct {
	// Factor is the running-average momentum.
	Factor  float64 `json:"factor" yaml:"factor"`
	Epsilon float64 `json:"epsilon" yaml:"epsilon"`
}

func (BNUpdateAttrs) Pattern() string { return PatternBNUpdate }

// Format is the declared axis order of a group-norm input.
type Format string

const (
	FormatNCHW Format = "NCHW"
	FormatNHWC Format = "NHWC"
)

// GroupNormAttrs configure a group-norm statistics reduction.
type GroupNormAttrs struct {
	NumGroups int    `json:"num_groups" yaml:"num_groups"`
	Format    Format `json:"format" yaml:"format"`
}

func (GroupNormAttrs) Pattern() string { return PatternGNReduce }

// GroupAxis is the axis holding the groups of a rank-5 grouped input.
func (a GroupNormAttrs) GroupAxis() int {
	if a.Format == FormatNHWC {
		return 3
	}
	return 1
}

// ReduceAxes are the axes summed over in a rank-5 grouped input.
func (a GroupNormAttrs) ReduceAxes() []int {
	if a.Format == FormatNHWC {
		return []int{1, 2, 4}
	}
	return []int{2, 3, 4}
}

// DecodeAttrs parses the attributes of pattern. Missing fields keep the
// pattern defaults.
func DecodeAttrs(pattern string, raw []byte) (Attrs, error) {
	switch pattern {
	case PatternQuant:
		a := QuantAttrs{Scale: 1}
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		return a, nil
	case PatternBNUpdate:
		a := BNUpdateAttrs{Factor: 0.1, Epsilon: 1e-5}
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		return a, nil
	case PatternGNReduce:
		a := GroupNormAttrs{NumGroups: 1, Format: FormatNCHW}
		if err := decode(raw, &a); err != nil {
			return nil, err
		}
		a.Format = Format(strings.ToUpper(string(a.Format)))
		return a, nil
	}
	return nil, schedule.Errorf(schedule.ErrUnsupportedPattern, "unknown pattern %q", pattern)
}

func decode(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode attrs: %w", err)
	}
	return nil
}
