package stage

import (
	"errors"
	"testing"

	"github.com/samcharles93/tessera/internal/graph"
	"github.com/samcharles93/tessera/internal/schedule"
)

func walk(t *testing.T, outputs ...*graph.Node) *graph.Graph {
	t.Helper()
	g, err := graph.Walk(outputs...)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	return g
}

func mustStage(t *testing.T, p *Plan, name string) *schedule.Stage {
	t.Helper()
	st, ok := p.Lookup(name)
	if !ok {
		t.Fatalf("stage %q missing", name)
	}
	return st
}

func TestBuildInlinesSingleUse(t *testing.T) {
	t.Parallel()

	x := graph.Placeholder("x", graph.Shape{4, 16}, graph.Float16)
	scaled := graph.Scalar("scaled", graph.OpMuls, x, 0.5)
	y := graph.Cast("y", scaled, graph.Int8, graph.RoundNearest)

	p, err := Build(walk(t, y), Rules{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if p.Root != "y" {
		t.Fatalf("root: got %q want y", p.Root)
	}

	read := mustStage(t, p, "x.local")
	if read.Kind != schedule.StageRead || read.Scope != schedule.ScopeLocal {
		t.Fatalf("x.local: got %v/%v", read.Kind, read.Scope)
	}
	if !mustStage(t, p, "scaled").Inline {
		t.Fatal("single-use intermediate should be inline")
	}
	if !mustStage(t, p, "y.local").Writer {
		t.Fatal("output compute stage should be the writer")
	}
	if wb := mustStage(t, p, "y"); wb.Scope != schedule.ScopeGlobal || !wb.Output {
		t.Fatalf("write-back: got %+v", wb)
	}
	if _, ok := p.Lookup("y.reuse"); ok {
		t.Fatal("output without internal consumers needs no alias")
	}

	full := graph.Shape{4, 16}
	if got := p.Live(full); got != 2 {
		t.Fatalf("live: got %d want 2", got)
	}
	if got := p.Width(full); got != 2 {
		t.Fatalf("width: got %d want 2", got)
	}
}

func TestBuildReuseAndMaterialize(t *testing.T) {
	t.Parallel()

	x := graph.Placeholder("x", graph.Shape{8, 32}, graph.Float32)
	mean := graph.Reduce("mean", graph.OpReduceSum, x, 1)
	bmean := graph.Scalar("bmean", graph.OpMuls, mean, 1.0/32)
	shared := graph.Broadcast("shared", bmean, graph.Shape{8, 32})
	d1 := graph.Binary("d1", graph.OpSub, x, shared)
	d2 := graph.Binary("d2", graph.OpMul, d1, shared)

	p, err := Build(walk(t, d2, bmean), Rules{Primary: "d2"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if p.Root != "d2" {
		t.Fatalf("root: got %q", p.Root)
	}

	if st := mustStage(t, p, "mean.local"); st.Inline {
		t.Fatal("reductions are never inline")
	}
	if st := mustStage(t, p, "shared.local"); !st.Writer {
		t.Fatal("multi-use intermediate should be materialized")
	}
	alias := mustStage(t, p, "bmean.reuse")
	if alias.ReuseOf != "bmean.local" || alias.Writer {
		t.Fatalf("alias: got %+v", alias)
	}
	if alias.Allocated() {
		t.Fatal("alias must not allocate storage")
	}
	if err := p.Check(); err != nil {
		t.Fatalf("check: %v", err)
	}
	if got, ok := p.Local("bmean"); !ok || got.Name != "bmean.local" {
		t.Fatalf("local of bmean: got %v", got)
	}
}

func TestBuildNoInlineRule(t *testing.T) {
	t.Parallel()

	x := graph.Placeholder("x", graph.Shape{4, 16}, graph.Float32)
	h := graph.Cast("h", x, graph.Float16, graph.RoundNone)
	y := graph.Scalar("y", graph.OpAdds, h, 1)

	p, err := Build(walk(t, y), Rules{NoInline: func(n *graph.Node) bool { return n.Kind.IsCast() }})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if st := mustStage(t, p, "h.local"); st.Inline {
		t.Fatal("excluded cast must stay materialized")
	}
}

func TestBuildErrors(t *testing.T) {
	t.Parallel()

	x := graph.Placeholder("x", graph.Shape{4}, graph.Float16)
	y := graph.Unary("y", graph.OpAbs, x)
	if _, err := Build(walk(t, y), Rules{Primary: "x"}); !errors.Is(err, schedule.ErrInvalidGraphShape) {
		t.Fatalf("expected ErrInvalidGraphShape for non-output primary, got %v", err)
	}

	clash := graph.Unary("x.local", graph.OpAbs, x)
	if _, err := Build(walk(t, clash), Rules{}); !errors.Is(err, schedule.ErrInvalidGraphShape) {
		t.Fatalf("expected name collision error, got %v", err)
	}
}
