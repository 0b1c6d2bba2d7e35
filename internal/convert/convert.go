// Package convert turns aggregated perf script samples into gzip-compressed
// pprof CPU profiles.
package convert

import (
	"fmt"
	"io"
	"sort"

	"github.com/google/pprof/profile"

	"github.com/fujita/perf-tools/internal/perfscript"
)

// Converter interns functions and locations while assembling one pprof
// message. All tables are scoped to a single conversion; create a new
// Converter per input.
type Converter struct {
	functions map[string]*profile.Function
	locations map[uint64]*profile.Location

	prof *profile.Profile
}

// New returns a Converter with empty intern tables.
func New() *Converter {
	return &Converter{
		functions: make(map[string]*profile.Function),
		locations: make(map[uint64]*profile.Location),
		prof: &profile.Profile{
			SampleType: []*profile.ValueType{
				{Type: "samples", Unit: "count"},
				{Type: "cpu", Unit: "nanoseconds"},
			},
			PeriodType: &profile.ValueType{Type: "cpu", Unit: "nanoseconds"},
		},
	}
}

// location returns the interned location for an address, creating it on
// first sight. A new location is bound to the function named on the frame;
// if the same address later shows up with a different function name the
// original binding is kept.
func (c *Converter) location(addr uint64, name string) *profile.Location {
	if loc, ok := c.locations[addr]; ok {
		return loc
	}
	fn, ok := c.functions[name]
	if !ok {
		fn = &profile.Function{
			ID:   1 + uint64(len(c.prof.Function)),
			Name: name,
		}
		c.functions[name] = fn
		c.prof.Function = append(c.prof.Function, fn)
	}
	loc := &profile.Location{
		ID:      1 + uint64(len(c.prof.Location)),
		Address: addr,
		// Source lines are not recoverable from perf script output.
		Line: []profile.Line{{Function: fn, Line: 0}},
	}
	c.locations[addr] = loc
	c.prof.Location = append(c.prof.Location, loc)
	return loc
}

// Build assembles the pprof message for a parsed profile. Samples are
// visited in a fixed order so that repeated conversions of the same input
// assign identical ids and serialize to identical bytes.
func (c *Converter) Build(p *perfscript.Profile) (*profile.Profile, error) {
	if p.Frequency == 0 {
		return nil, fmt.Errorf("cannot convert profile with zero sampling frequency")
	}

	keys := make([]string, 0, len(p.Samples))
	for k := range p.Samples {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		s := p.Samples[k]
		locs := make([]*profile.Location, 0, len(s.Stack))
		for _, f := range s.Stack {
			locs = append(locs, c.location(f.Address, f.Function))
		}
		count := int64(s.Count)
		c.prof.Sample = append(c.prof.Sample, &profile.Sample{
			Location: locs,
			Value:    []int64{count, count * 1_000_000_000 / int64(p.Frequency)},
		})
	}

	c.prof.TimeNanos = p.CapturedAt.UnixNano()
	c.prof.DurationNanos = int64(p.Duration)
	c.prof.Period = 1_000_000_000 / int64(p.Frequency)

	if err := c.prof.CheckValid(); err != nil {
		return nil, fmt.Errorf("assembled profile is invalid: %w", err)
	}
	return c.prof, nil
}

// Convert parses a perf script dump from r and writes the gzip-compressed
// pprof profile to w. Nothing is written on a parse or assembly failure.
func Convert(r io.Reader, w io.Writer) error {
	parsed, err := perfscript.Parse(r)
	if err != nil {
		return err
	}
	prof, err := New().Build(parsed)
	if err != nil {
		return err
	}
	if err := prof.Write(w); err != nil {
		return fmt.Errorf("writing profile: %w", err)
	}
	return nil
}
