package pipeline

import (
	"testing"

	"github.com/samcharles93/tessera/internal/schedule"
)

func nest() schedule.LoopNest {
	return schedule.LoopNest{Loops: []schedule.Loop{
		{Name: "block", Extent: 32, Role: schedule.RoleBlock},
		{Name: "ax0.c", Extent: 2, Role: schedule.RoleCore},
		{Name: "ax1.o", Extent: 4, Role: schedule.RoleTileOuter},
		{Name: "ax1.i", Extent: 8, Role: schedule.RoleTileInner},
	}}
}

func stages() []*schedule.Stage {
	return []*schedule.Stage{
		{Name: "x.local", Kind: schedule.StageRead, Scope: schedule.ScopeLocal},
		{Name: "gamma.local", Kind: schedule.StageRead, Scope: schedule.ScopeLocal},
		{Name: "mean.reuse", Kind: schedule.StageRead, Scope: schedule.ScopeLocal, ReuseOf: "mean.local"},
		{Name: "y.local", Kind: schedule.StageCompute, Scope: schedule.ScopeLocal, Writer: true},
	}
}

func TestAdvise(t *testing.T) {
	t.Parallel()

	flags := Advise(Input{
		Stages: stages(),
		Attach: []schedule.ComputeAtEdge{
			{Stage: "x.local", Consumer: "y", Level: "ax1.o"},
			{Stage: "gamma.local", Consumer: "y", Level: "ax0.c", Hoisted: true},
			{Stage: "mean.reuse", Consumer: "y", Level: "ax1.o"},
			{Stage: "y.local", Consumer: "y", Level: "ax1.o"},
		},
		Nest:    nest(),
		Primary: "x.local",
	})
	if len(flags) != 2 {
		t.Fatalf("flags: got %d want 2 (%+v)", len(flags), flags)
	}
	if !flags[0].Enabled || flags[0].TripCount != 8 {
		t.Fatalf("primary: got %+v want enabled with 8 trips", flags[0])
	}
	if flags[1].Enabled || flags[1].Stage != "gamma.local" {
		t.Fatalf("secondary: got %+v", flags[1])
	}
}

func TestAdviseSingleTrip(t *testing.T) {
	t.Parallel()

	flags := Advise(Input{
		Stages:  stages()[:1],
		Attach:  []schedule.ComputeAtEdge{{Stage: "x.local", Consumer: "y", Level: "block"}},
		Nest:    nest(),
		Primary: "x.local",
	})
	if len(flags) != 1 || flags[0].Enabled || flags[0].TripCount != 1 {
		t.Fatalf("got %+v want a disabled single-trip flag", flags)
	}

	forced := ForceEvenBatch(flags, "x.local", 4)
	if !forced[0].Enabled {
		t.Fatal("even batch should force double buffering")
	}
	odd := ForceEvenBatch([]schedule.DoubleBufferFlag{{Stage: "x.local"}}, "x.local", 3)
	if odd[0].Enabled {
		t.Fatal("odd batch must not force double buffering")
	}
}
