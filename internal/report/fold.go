// Package report renders parsed perf profiles into human- and tool-oriented
// text formats: folded stacks for flamegraph tooling and hotspot summaries
// for the terminal.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fujita/perf-tools/internal/perfscript"
)

// WriteFolded writes the aggregated samples in collapsed stack format, one
// "func1;func2;func3 count" line per distinct stack, root-first. Lines are
// sorted so output is stable across runs.
func WriteFolded(p *perfscript.Profile, w io.Writer) error {
	lines := make([]string, 0, len(p.Samples))
	for _, s := range p.Samples {
		names := make([]string, len(s.Stack))
		// Stacks are stored leaf-first; folded format wants root-first.
		for i, f := range s.Stack {
			names[len(s.Stack)-1-i] = f.Function
		}
		lines = append(lines, fmt.Sprintf("%s %d", strings.Join(names, ";"), s.Count))
	}
	sort.Strings(lines)

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
