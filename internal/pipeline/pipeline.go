// Package pipeline advises which DMA-fed stages are double buffered.
package pipeline

import (
	"fmt"

	"github.com/samcharles93/tessera/internal/schedule"
)

type Input struct {
	Stages []*schedule.Stage
	Attach []schedule.ComputeAtEdge
	Nest   schedule.LoopNest
	// Primary is the read stage that streams the main operand.
	Primary string
}

// Advise returns one flag per DMA-fed stage. Only the primary stage is
// pipelined, and only when it is loaded more than once per core.
func Advise(in Input) []schedule.DoubleBufferFlag {
	levels := make(map[string]int, len(in.Attach))
	for _, e := range in.Attach {
		levels[e.Stage] = in.Nest.Index(e.Level)
	}

	var flags []schedule.DoubleBufferFlag
	for _, st := range in.Stages {
		if st.Kind != schedule.StageRead || st.ReuseOf != "" {
			continue
		}
		level, ok := levels[st.Name]
		if !ok || level < 0 {
			continue
		}
		trips := in.Nest.TripCount(level)
		f := schedule.DoubleBufferFlag{Stage: st.Name, TripCount: trips}
		switch {
		case st.Name != in.Primary:
			f.Reason = "secondary operand"
		case trips > 1:
			f.Enabled = true
			f.Reason = fmt.Sprintf("%d loads per core", trips)
		default:
			f.Reason = "single load per core"
		}
		flags = append(flags, f)
	}
	return flags
}

// ForceEvenBatch enables double buffering on the primary stage whenever
// the batch extent is even, regardless of its trip count.
func ForceEvenBatch(flags []schedule.DoubleBufferFlag, primary string, batch int) []schedule.DoubleBufferFlag {
	if batch%2 != 0 {
		return flags
	}
	for i := range flags {
		if flags[i].Stage == primary && !flags[i].Enabled {
			flags[i].Enabled = true
			flags[i].Reason = fmt.Sprintf("even batch of %d", batch)
		}
	}
	return flags
}
