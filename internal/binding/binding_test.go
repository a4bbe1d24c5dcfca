package binding

import (
	"slices"
	"testing"

	"github.com/samcharles93/tessera/internal/graph"
	"github.com/samcharles93/tessera/internal/schedule"
)

func space(t *testing.T, dims ...int) schedule.IterSpace {
	t.Helper()
	sp, err := schedule.NewSpace(graph.Shape(dims), nil)
	if err != nil {
		t.Fatalf("space %v: %v", dims, err)
	}
	return sp
}

var whole = schedule.AxisPlan{Whole: true, Factor: 1}

func TestBindLeadingAxis(t *testing.T) {
	t.Parallel()

	sp := space(t, 64, 16)
	b, leftover := Bind(sp, whole, 32, Options{BlockBytes: 32, Width: 2})
	if b.Rule != schedule.RuleLeadingAxis || b.Parts != 32 || b.PerCore != 2 {
		t.Fatalf("got %+v want 32 parts of 2 on the leading axis", b)
	}
	if leftover != 1 {
		t.Fatalf("leftover: got %d want 1", leftover)
	}
	pc := PerCoreSpace(sp, b)
	if !slices.Equal(pc.Dims, []int{2, 16}) {
		t.Fatalf("per-core dims: got %v want [2 16]", pc.Dims)
	}
}

func TestBindTileOuter(t *testing.T) {
	t.Parallel()

	sp := space(t, 4, 40, 64)
	plan := schedule.AxisPlan{Axis: 1, Factor: 4, Extent: 40, Inner: 64, Budget: 256}
	b, leftover := Bind(sp, plan, 32, Options{})
	if b.Rule != schedule.RuleTileOuter {
		t.Fatalf("rule: got %v want tile-outer", b.Rule)
	}
	if b.Extent != 40 || b.Parts != 32 || b.PerCore != 2 || b.TileFactor != 4 {
		t.Fatalf("unexpected binding: %+v", b)
	}
	if leftover != 2 {
		t.Fatalf("leftover: got %d want 2", leftover)
	}
	pc := PerCoreSpace(sp, b)
	if !slices.Equal(pc.Dims, []int{2, 4, 64}) {
		t.Fatalf("per-core dims: got %v want [2 4 64]", pc.Dims)
	}
	if !slices.Equal(pc.Axes[0], []int{0, 1}) || !slices.Equal(pc.Axes[1], []int{1}) {
		t.Fatalf("per-core axes: got %v", pc.Axes)
	}
}

func TestBindFusedAxes(t *testing.T) {
	t.Parallel()

	b, leftover := Bind(space(t, 4, 4, 16, 16), whole, 32, Options{BlockBytes: 32, Width: 2})
	if b.Rule != schedule.RuleFusedAxes || b.Extent != 256 || b.Parts != 32 || b.PerCore != 8 {
		t.Fatalf("unexpected binding: %+v", b)
	}
	if leftover != 3 || !slices.Equal(b.Axes, []int{0, 1, 2}) {
		t.Fatalf("fused axes: got %v leftover %d", b.Axes, leftover)
	}
}

func TestBindFullFusionUnderutilizes(t *testing.T) {
	t.Parallel()

	b, leftover := Bind(space(t, 2, 3, 16), whole, 32, Options{MaxFused: 2, BlockBytes: 32, Width: 2})
	if b.Rule != schedule.RuleFullFusion || b.Parts != 6 || b.PerCore != 1 {
		t.Fatalf("unexpected binding: %+v", b)
	}
	if leftover != 2 {
		t.Fatalf("leftover: got %d want 2", leftover)
	}
}

func TestBindKeepsWholeBlocksPerCore(t *testing.T) {
	t.Parallel()

	b, _ := Bind(space(t, 64, 4), whole, 32, Options{BlockBytes: 32, Width: 2})
	if b.Parts != 16 || b.PerCore != 4 {
		t.Fatalf("got %d parts of %d want 16 parts of 4", b.Parts, b.PerCore)
	}
}

func TestBindNeverExceedsCores(t *testing.T) {
	t.Parallel()

	shapes := [][]int{{1, 1, 1}, {3, 5, 7}, {128, 2}, {31, 31}, {2, 2, 2, 2, 2, 2}, {1, 1024}}
	for _, dims := range shapes {
		for _, cores := range []int{1, 2, 8, 32, 48} {
			b, leftover := Bind(space(t, dims...), whole, cores, Options{BlockBytes: 32, Width: 4})
			if b.Parts < 1 || b.Parts > cores {
				t.Fatalf("%v on %d cores: %d parts", dims, cores, b.Parts)
			}
			if b.PerCore*b.Parts < b.Extent {
				t.Fatalf("%v on %d cores: %d x %d does not cover %d", dims, cores, b.Parts, b.PerCore, b.Extent)
			}
			if leftover < 1 || leftover > len(dims) {
				t.Fatalf("%v on %d cores: leftover %d", dims, cores, leftover)
			}
		}
	}
}
