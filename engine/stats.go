package engine

import (
	"math"
	"sync/atomic"
)

type counters struct {
	framesRead      atomic.Uint64
	underruns       atomic.Uint64
	evictions       atomic.Uint64
	commands        atomic.Uint64
	commandsDropped atomic.Uint64
	faults          atomic.Uint64
	peak            atomic.Uint32
}

// Stats is a snapshot of the engine counters.
type Stats struct {
	State           State
	FramesRead      uint64  // frames taken from the relay
	Underruns       uint64  // ticks that ended without a new frame
	Evictions       uint64  // unread frames overwritten by newer ones
	Commands        uint64  // commands applied
	CommandsDropped uint64  // commands refused by a full queue
	Faults          uint64  // render calls that panicked
	Peak            float32 // absolute peak of the last block
	FreeFrames      int     // frame buffers available in the pool
}

// Stats returns a snapshot of the counters. Safe for concurrent use.
func (e *Engine) Stats() Stats {
	return Stats{
		State:           e.State(),
		FramesRead:      e.stats.framesRead.Load(),
		Underruns:       e.stats.underruns.Load(),
		Evictions:       e.stats.evictions.Load(),
		Commands:        e.stats.commands.Load(),
		CommandsDropped: e.stats.commandsDropped.Load(),
		Faults:          e.stats.faults.Load(),
		Peak:            math.Float32frombits(e.stats.peak.Load()),
		FreeFrames:      e.frames.Free(),
	}
}
