package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fujita/perf-tools/internal/perfscript"
)

func testProfile() *perfscript.Profile {
	// Stacks are leaf-first, the way the parser stores them.
	hot := perfscript.Stack{
		{Address: 0x1, Function: "compute", Module: "(/bin/app)"},
		{Address: 0x2, Function: "run", Module: "(/bin/app)"},
		{Address: 0x3, Function: "main", Module: "(/bin/app)"},
	}
	idle := perfscript.Stack{
		{Address: 0x4, Function: "poll", Module: "(/bin/app)"},
		{Address: 0x3, Function: "main", Module: "(/bin/app)"},
	}
	return &perfscript.Profile{
		Samples: map[string]*perfscript.Sample{
			"hot":  {Stack: hot, Count: 3},
			"idle": {Stack: idle, Count: 1},
		},
		Frequency: 100,
	}
}

func TestWriteFolded(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, WriteFolded(testProfile(), &out))

	want := "main;poll 1\n" +
		"main;run;compute 3\n"
	require.Equal(t, want, out.String())
}

func TestHotspots(t *testing.T) {
	hotspots := Hotspots(testProfile(), 0)
	require.Len(t, hotspots, 4)

	// main appears in every sample.
	require.Equal(t, "main", hotspots[0].Function)
	require.Equal(t, uint64(4), hotspots[0].Samples)
	require.InDelta(t, 100.0, hotspots[0].Percentage, 0.001)

	require.Equal(t, "compute", hotspots[1].Function)
	require.Equal(t, uint64(3), hotspots[1].Samples)

	top2 := Hotspots(testProfile(), 2)
	require.Len(t, top2, 2)
}

func TestHotspotsRecursionCountedOnce(t *testing.T) {
	recursive := perfscript.Stack{
		{Address: 0x1, Function: "walk", Module: "(/bin/app)"},
		{Address: 0x1, Function: "walk", Module: "(/bin/app)"},
		{Address: 0x3, Function: "main", Module: "(/bin/app)"},
	}
	p := &perfscript.Profile{
		Samples: map[string]*perfscript.Sample{
			"r": {Stack: recursive, Count: 5},
		},
	}

	hotspots := Hotspots(p, 0)
	require.Len(t, hotspots, 2)
	for _, hs := range hotspots {
		require.Equal(t, uint64(5), hs.Samples)
	}
}

func TestLeafHotspots(t *testing.T) {
	leaves := LeafHotspots(testProfile(), 0)
	require.Len(t, leaves, 2)
	require.Equal(t, "compute", leaves[0].Function)
	require.Equal(t, uint64(3), leaves[0].Samples)
	require.Equal(t, "poll", leaves[1].Function)
	require.Equal(t, uint64(1), leaves[1].Samples)
}

func TestFormatHotspot(t *testing.T) {
	s := FormatHotspot(Hotspot{
		Function:   "compute",
		Module:     "(/bin/app)",
		Samples:    3,
		Percentage: 75.0,
	}, 1)
	require.Contains(t, s, "#1: compute")
	require.Contains(t, s, "(/bin/app)")
	require.Contains(t, s, "3 (75.00%)")
}
