package perfexec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordArgs(t *testing.T) {
	t.Run("explicitFrequency", func(t *testing.T) {
		args := recordArgs(RecordOptions{
			Binary:    "/tmp/app",
			Frequency: 997,
			Output:    "perf.data",
		})
		require.Equal(t, []string{
			"record",
			"--call-graph", "dwarf",
			"-g",
			"-F", "997",
			"-o", "perf.data",
			"/tmp/app",
		}, args)
	})

	t.Run("defaultFrequency", func(t *testing.T) {
		args := recordArgs(RecordOptions{Binary: "/tmp/app", Output: "perf.data"})
		require.Contains(t, args, "99")
	})
}

func TestScriptArgs(t *testing.T) {
	require.Equal(t, []string{"script", "--header", "-i", "perf.data"}, scriptArgs("perf.data"))
}
