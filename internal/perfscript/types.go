package perfscript

import (
	"fmt"
	"strings"
	"time"
)

// Frame is one entry of a sampled call stack.
type Frame struct {
	Address  uint64
	Function string
	Module   string
}

// Stack is an ordered list of frames, leaf-first, in the order the frames
// appeared in the input block. Two stacks are equal only if their frame
// sequences are equal element-wise, including order.
type Stack []Frame

// key returns a canonical byte representation of the stack used as the
// aggregation map key. Stacks are not comparable Go values, so identity is
// established through this flat encoding instead.
func (s Stack) key() string {
	var b strings.Builder
	for _, f := range s {
		fmt.Fprintf(&b, "%x\x1f%s\x1f%s\x1e", f.Address, f.Function, f.Module)
	}
	return b.String()
}

// Sample is one distinct stack together with the number of times the
// profiler observed it.
type Sample struct {
	Stack Stack
	Count uint64
}

// Profile holds everything recovered from one perf script dump: the
// aggregated samples and the capture metadata needed to turn counts into
// time.
type Profile struct {
	// Samples maps a stack's canonical key to its aggregated sample.
	Samples map[string]*Sample

	// CapturedAt is the wall-clock time the capture started, taken from
	// the "captured on" header line, in the local time zone.
	CapturedAt time.Time

	// Duration is the elapsed time between the first and the last event
	// timestamp seen in the dump, at microsecond resolution.
	Duration time.Duration

	// Frequency is the sampling rate in samples per second. Always > 0
	// for a successfully parsed profile.
	Frequency uint64

	// DroppedFrames counts frame lines whose address token failed base-16
	// parsing. Such frames are skipped rather than failing the parse.
	DroppedFrames int
}

// TotalSamples returns the sum of all aggregated counts, i.e. the number of
// non-empty stack blocks in the input.
func (p *Profile) TotalSamples() uint64 {
	var total uint64
	for _, s := range p.Samples {
		total += s.Count
	}
	return total
}
