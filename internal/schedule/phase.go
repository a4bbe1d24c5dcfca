package schedule

import "fmt"

// Phase is a state of one scheduling call.
type Phase uint8

const (
	PhaseStart Phase = iota
	PhaseTraversed
	PhaseStaged
	PhaseTiled
	PhaseBound
	PhasePlaced
	PhaseReductionFactored
	PhaseInstructionBound
	PhaseDoubleBufferAdvised
	PhaseFinalized
)

var phaseNames = [...]string{
	PhaseStart:               "start",
	PhaseTraversed:           "traversed",
	PhaseStaged:              "staged",
	PhaseTiled:               "tiled",
	PhaseBound:               "bound",
	PhasePlaced:              "placed",
	PhaseReductionFactored:   "reduction-factored",
	PhaseInstructionBound:    "instruction-bound",
	PhaseDoubleBufferAdvised: "double-buffer-advised",
	PhaseFinalized:           "finalized",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Tracker enforces the fixed phase order. Only the reduction phase may be
// skipped.
type Tracker struct {
	cur   Phase
	trail []Phase
}

func (t *Tracker) Current() Phase { return t.cur }

func (t *Tracker) Trail() []Phase { return append([]Phase(nil), t.trail...) }

func (t *Tracker) Advance(next Phase) error {
	if next <= t.cur || next > PhaseFinalized {
		return fmt.Errorf("phase %s cannot follow %s", next, t.cur)
	}
	for p := t.cur + 1; p < next; p++ {
		if p != PhaseReductionFactored {
			return fmt.Errorf("phase %s skips %s", next, p)
		}
	}
	t.cur = next
	t.trail = append(t.trail, next)
	return nil
}
