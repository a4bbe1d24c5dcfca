package schedule

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// Attachable reports whether a stage needs a compute-at edge.
func Attachable(st *Stage, root string) bool {
	return !st.Inline && st.Name != root
}

// Validate checks the invariants every emitted schedule must hold.
func Validate(s *Schedule, coreNum int) error {
	if s.Binding != nil {
		if s.Binding.Parts < 1 || s.Binding.Parts > coreNum {
			return fmt.Errorf("schedule invariant: binding uses %d parts on %d cores", s.Binding.Parts, coreNum)
		}
	}
	if r := s.Reduction; r != nil && r.Mode == ReduceAtomicSplit {
		if s.Binding == nil || s.Binding.Parts < 2 || r.Parts < 2 {
			return fmt.Errorf("schedule invariant: atomic split of axis %d combines %d part", r.SplitAxis, r.Parts)
		}
	}
	if !s.Tiling.Whole {
		if s.Tiling.Factor < 1 || s.Tiling.Factor > s.Tiling.Extent {
			return fmt.Errorf("schedule invariant: factor %d outside [1,%d]", s.Tiling.Factor, s.Tiling.Extent)
		}
		if s.Tiling.TileElems() > s.Tiling.Budget {
			return fmt.Errorf("schedule invariant: tile of %d elements exceeds budget %d", s.Tiling.TileElems(), s.Tiling.Budget)
		}
	}
	if len(s.Nest.Loops) == 0 || s.Nest.Loops[0].Role != RoleBlock {
		return fmt.Errorf("schedule invariant: loop nest has no block loop")
	}
	root := s.Stage(s.Root)
	if root == nil {
		return fmt.Errorf("schedule invariant: root stage %q missing", s.Root)
	}

	attached := make(map[string]bool, len(s.Attach))
	for _, e := range s.Attach {
		st := s.Stage(e.Stage)
		if st == nil {
			return fmt.Errorf("schedule invariant: edge for unknown stage %q", e.Stage)
		}
		if !Attachable(st, s.Root) {
			return fmt.Errorf("schedule invariant: stage %q cannot be attached", e.Stage)
		}
		if e.Consumer != s.Root {
			return fmt.Errorf("schedule invariant: stage %q attached to %q, not the root", e.Stage, e.Consumer)
		}
		if s.Nest.Index(e.Level) < 0 {
			return fmt.Errorf("schedule invariant: stage %q attached at missing loop %q", e.Stage, e.Level)
		}
		if attached[e.Stage] {
			return fmt.Errorf("schedule invariant: stage %q attached twice", e.Stage)
		}
		attached[e.Stage] = true
	}

	for _, st := range s.Stages {
		if Attachable(st, s.Root) && !attached[st.Name] {
			return fmt.Errorf("schedule invariant: stage %q is not attached", st.Name)
		}
		if st.ReuseOf == "" {
			continue
		}
		w := s.Stage(st.ReuseOf)
		if w == nil || !w.Writer || w.ReuseOf != "" {
			return fmt.Errorf("schedule invariant: stage %q reuses %q which is not a writer", st.Name, st.ReuseOf)
		}
		if st.Writer {
			return fmt.Errorf("schedule invariant: reuse pair %q/%q has two writers", st.ReuseOf, st.Name)
		}
	}
	return nil
}

// Encode writes the schedule as indented JSON.
func Encode(w io.Writer, s *Schedule) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
