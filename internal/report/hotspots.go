package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fujita/perf-tools/internal/perfscript"
)

// Hotspot is a function that showed up in sampled stacks, weighted by how
// many samples contained it.
type Hotspot struct {
	Function   string
	Module     string
	Samples    uint64  // samples whose stack contains this function
	Percentage float64 // share of all samples
}

// Hotspots returns the functions appearing in the most samples, descending.
// A function occurring several times in one stack (recursion) is counted
// once per sample. topN <= 0 returns all.
func Hotspots(p *perfscript.Profile, topN int) []Hotspot {
	hotspotMap := make(map[string]*Hotspot)
	var totalSamples uint64

	for _, s := range p.Samples {
		totalSamples += s.Count

		seenInThisStack := make(map[string]bool)
		for _, f := range s.Stack {
			sig := fmt.Sprintf("%s!%s", f.Module, f.Function)
			if seenInThisStack[sig] {
				continue
			}
			seenInThisStack[sig] = true

			hs, ok := hotspotMap[sig]
			if !ok {
				hs = &Hotspot{Function: f.Function, Module: f.Module}
				hotspotMap[sig] = hs
			}
			hs.Samples += s.Count
		}
	}

	return rank(hotspotMap, totalSamples, topN)
}

// LeafHotspots returns the functions most often found at the leaf of a
// stack. These are usually the instructions actually burning CPU.
func LeafHotspots(p *perfscript.Profile, topN int) []Hotspot {
	leafMap := make(map[string]*Hotspot)
	var totalSamples uint64

	for _, s := range p.Samples {
		totalSamples += s.Count
		if len(s.Stack) == 0 {
			continue
		}

		// Stacks are leaf-first.
		f := s.Stack[0]
		sig := fmt.Sprintf("%s!%s", f.Module, f.Function)
		hs, ok := leafMap[sig]
		if !ok {
			hs = &Hotspot{Function: f.Function, Module: f.Module}
			leafMap[sig] = hs
		}
		hs.Samples += s.Count
	}

	return rank(leafMap, totalSamples, topN)
}

func rank(m map[string]*Hotspot, totalSamples uint64, topN int) []Hotspot {
	hotspots := make([]Hotspot, 0, len(m))
	for _, hs := range m {
		if totalSamples > 0 {
			hs.Percentage = float64(hs.Samples) / float64(totalSamples) * 100.0
		}
		hotspots = append(hotspots, *hs)
	}

	sort.Slice(hotspots, func(i, j int) bool {
		if hotspots[i].Samples != hotspots[j].Samples {
			return hotspots[i].Samples > hotspots[j].Samples
		}
		return hotspots[i].Function < hotspots[j].Function
	})

	if topN > 0 && topN < len(hotspots) {
		return hotspots[:topN]
	}
	return hotspots
}

// FormatHotspot returns a human-readable rendering of one hotspot entry.
func FormatHotspot(hs Hotspot, rank int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("#%d: %s\n", rank, hs.Function))
	if hs.Module != "" {
		sb.WriteString(fmt.Sprintf("    Module: %s\n", hs.Module))
	}
	sb.WriteString(fmt.Sprintf("    Samples: %d (%.2f%%)\n", hs.Samples, hs.Percentage))
	return sb.String()
}
