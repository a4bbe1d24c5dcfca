// Package driver holds the per-pattern schedule drivers. Each driver
// recognizes its graph pattern and hands its staging, tiling and placement
// rules to the shared scheduling phases.
package driver

import (
	"context"
	"slices"

	"github.com/samcharles93/tessera/internal/capability"
	"github.com/samcharles93/tessera/internal/graph"
	"github.com/samcharles93/tessera/internal/kernels"
	"github.com/samcharles93/tessera/internal/schedule"
)

// Options are caller overrides that apply to every pattern.
type Options struct {
	// SingleCore skips core binding entirely.
	SingleCore bool `json:"single_core,omitempty" yaml:"single_core"`
}

// Request is one scheduling call.
type Request struct {
	Outputs    []*graph.Node
	Attrs      kernels.Attrs
	Capability capability.Capability
	Options    Options
}

// Pattern is the pattern named by the request attributes.
func (r Request) Pattern() string {
	if r.Attrs == nil {
		return ""
	}
	return r.Attrs.Pattern()
}

type Driver interface {
	Pattern() string
	Schedule(ctx context.Context, req Request) (*schedule.Schedule, error)
}

var drivers = map[string]Driver{
	kernels.PatternQuant:    quantDriver{},
	kernels.PatternBNUpdate: bnUpdateDriver{},
	kernels.PatternGNReduce: gnReduceDriver{},
}

// Lookup returns the driver for pattern.
func Lookup(pattern string) (Driver, error) {
	d, ok := drivers[pattern]
	if !ok {
		return nil, schedule.Errorf(schedule.ErrUnsupportedPattern, "no driver for pattern %q", pattern)
	}
	return d, nil
}

// Patterns lists the registered patterns in order.
func Patterns() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Schedule dispatches req to the driver of its pattern.
func Schedule(ctx context.Context, req Request) (*schedule.Schedule, error) {
	d, err := Lookup(req.Pattern())
	if err != nil {
		return nil, err
	}
	return d.Schedule(ctx, req)
}
