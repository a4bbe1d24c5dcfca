package graph

import (
	"errors"
	"strconv"
	"strings"
	"testing"
)

func chain(depth int) *Node {
	n := Placeholder("x", Shape{4, 16}, Float16)
	for i := 0; i < depth; i++ {
		n = Scalar("s"+strconv.Itoa(i), OpMuls, n, 2)
	}
	return n
}

func TestWalkVisitsEachNodeOnce(t *testing.T) {
	t.Parallel()

	x := Placeholder("x", Shape{2, 8}, Float32)
	a := Unary("a", OpAbs, x)
	b := Binary("b", OpMul, x, x)
	c := Binary("c", OpAdd, a, b)
	d := Scalar("d", OpMuls, c, 0.5)

	g, err := Walk(d, c)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if g.Len() != 5 {
		t.Fatalf("node count: got %d want 5", g.Len())
	}

	pos := make(map[*Node]int)
	for i, n := range g.Nodes() {
		if _, dup := pos[n]; dup {
			t.Fatalf("node %s visited twice", n.Name)
		}
		pos[n] = i
	}
	for _, n := range g.Nodes() {
		for _, in := range n.Inputs {
			if pos[in] >= pos[n] {
				t.Fatalf("producer %s not before consumer %s", in.Name, n.Name)
			}
		}
	}

	if got := g.ConsumerCount(x); got != 2 {
		t.Fatalf("consumers of x: got %d want 2", got)
	}
	if got := g.ConsumerCount(c); got != 1 {
		t.Fatalf("consumers of c: got %d want 1", got)
	}
	if !g.IsOutput(c) || !g.IsOutput(d) || g.IsOutput(a) {
		t.Fatalf("output flags wrong")
	}
	if !g.Patterns.Elementwise || g.Patterns.Reduce || g.Patterns.Broadcast {
		t.Fatalf("unexpected patterns: %+v", g.Patterns)
	}
	if n, ok := g.Lookup("b"); !ok || n != b {
		t.Fatalf("lookup b failed")
	}
	if ins := g.Inputs(); len(ins) != 1 || ins[0] != x {
		t.Fatalf("inputs: got %v", ins)
	}
}

func TestWalkDeepGraphIsNotRecursive(t *testing.T) {
	t.Parallel()

	out := chain(100000)
	g, err := Walk(out)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if g.Len() != 100001 {
		t.Fatalf("node count: got %d", g.Len())
	}
	if g.Nodes()[0].Name != "x" {
		t.Fatalf("first node: got %s want x", g.Nodes()[0].Name)
	}
}

func TestWalkErrors(t *testing.T) {
	t.Parallel()

	if _, err := Walk(); !errors.Is(err, ErrNoOutputs) {
		t.Fatalf("expected ErrNoOutputs, got %v", err)
	}

	x1 := Placeholder("x", Shape{4}, Float16)
	x2 := Placeholder("x", Shape{4}, Float16)
	sum := Binary("sum", OpAdd, x1, x2)
	if _, err := Walk(sum); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}

	a := Placeholder("a", Shape{4}, Float16)
	b := Unary("b", OpAbs, a)
	a.Inputs = []*Node{b}
	if _, err := Walk(b); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}

func TestParseTag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tag   string
		kind  OpKind
		round RoundMode
	}{
		{"elewise_binary_add", OpAdd, RoundNone},
		{"elewise_single_cast|not_auto_cast", OpCast, RoundNone},
		{"elewise_single_round", OpCast, RoundNearest},
		{"elewise_single_VS_mul", OpMuls, RoundNone},
		{"broadcast_for_tensor", OpBroadcast, RoundNone},
		{"reduce_sum", OpReduceSum, RoundNone},
		{"elewise_binary_vcmpsel", OpUnknown, RoundNone},
	}
	for _, tt := range tests {
		kind, round := ParseTag(tt.tag)
		if kind != tt.kind || round != tt.round {
			t.Fatalf("ParseTag(%q): got (%v,%v) want (%v,%v)", tt.tag, kind, round, tt.kind, tt.round)
		}
	}
}

func TestSpecBuild(t *testing.T) {
	t.Parallel()

	const doc = `{
		"tensors": [
			{"name": "x", "shape": [2, 16], "dtype": "float16", "tag": "placeholder"},
			{"name": "y", "shape": [2, 16], "dtype": "float16", "tag": "elewise_single_VS_mul", "inputs": ["x"], "scalar": 0.25},
			{"name": "z", "shape": [2, 16], "dtype": "int8", "tag": "elewise_single_cast", "inputs": ["y"], "round_mode": "Floor"}
		],
		"outputs": ["z"]
	}`
	spec, err := DecodeSpec(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	outs, err := spec.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	z := outs[0]
	if z.Kind != OpCast || z.Round != RoundFloor || z.DType != Int8 {
		t.Fatalf("unexpected output node: %v round=%v", z, z.Round)
	}
	if y := z.Inputs[0]; y.Kind != OpMuls || y.Scalar != 0.25 {
		t.Fatalf("unexpected producer: %v", y)
	}

	g, err := Walk(outs...)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	back := SpecOf(g)
	if len(back.Tensors) != 3 || back.Outputs[0] != "z" {
		t.Fatalf("SpecOf: got %+v", back)
	}
}

func TestSpecMissingProducer(t *testing.T) {
	t.Parallel()

	spec := Spec{
		Tensors: []TensorSpec{
			{Name: "y", Shape: []int{4}, DType: Float16, Tag: "elewise_single_abs", Inputs: []string{"x"}},
		},
		Outputs: []string{"y"},
	}
	if _, err := spec.Build(); !errors.Is(err, ErrMissingProducer) {
		t.Fatalf("expected ErrMissingProducer, got %v", err)
	}
}

func TestSpecUnnamedTensor(t *testing.T) {
	t.Parallel()

	spec := Spec{
		Tensors: []TensorSpec{
			{Name: "x", Shape: []int{4}, DType: Float16, Tag: "placeholder"},
			{Shape: []int{4}, DType: Float16, Tag: "elewise_single_abs", Inputs: []string{"x"}},
		},
		Outputs: []string{"x"},
	}
	_, err := spec.Build()
	if !errors.Is(err, ErrUnnamed) || !strings.Contains(err.Error(), "tensor 1") {
		t.Fatalf("expected ErrUnnamed for tensor 1, got %v", err)
	}
}
