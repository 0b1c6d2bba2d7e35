package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fujita/perf-tools/internal/convert"
	"github.com/fujita/perf-tools/internal/perfexec"
	"github.com/fujita/perf-tools/internal/perfscript"
	"github.com/fujita/perf-tools/internal/report"
)

const (
	defaultPerfData     = "perf.data"
	defaultPprofOutput  = "cpu.pprof"
	defaultFoldedOutput = "profile.folded"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "perf2pprof <command>",
		Short:         "Convert perf script output into pprof profiles",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setLogLevel(logLevel)
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newConvertCmd(),
		newRecordCmd(),
		newTopCmd(),
	)
	return rootCmd
}

func setLogLevel(level string) {
	if l, err := logrus.ParseLevel(level); err == nil {
		logrus.SetLevel(l)
	}
}

// scriptReader yields the perf script text either from a pre-recorded text
// dump or by running perf script over a perf.data file.
func scriptReader(cmd *cobra.Command, scriptFile, dataFile string) (io.Reader, func(), error) {
	if scriptFile != "" {
		f, err := os.Open(scriptFile)
		if err != nil {
			return nil, nil, fmt.Errorf("opening script dump: %w", err)
		}
		return f, func() { f.Close() }, nil
	}
	out, err := perfexec.Script(cmd.Context(), dataFile)
	if err != nil {
		return nil, nil, err
	}
	return bytes.NewReader(out), func() {}, nil
}

func newConvertCmd() *cobra.Command {
	var (
		input      string
		scriptFile string
		output     string
	)

	convertCmd := &cobra.Command{
		Use:   "convert [flags]",
		Short: "Convert recorded perf data into a gzipped pprof profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, done, err := scriptReader(cmd, scriptFile, input)
			if err != nil {
				return err
			}
			defer done()

			return writeProfile(r, output)
		},
	}

	convertCmd.Flags().StringVarP(&input, "input", "i", defaultPerfData, "perf data file to convert")
	convertCmd.Flags().StringVar(&scriptFile, "script", "", "pre-recorded perf script text dump (skips running perf)")
	convertCmd.Flags().StringVarP(&output, "output", "o", defaultPprofOutput, "output file name")
	return convertCmd
}

// writeProfile converts one perf script dump and commits the result to
// path. The conversion runs against a temporary file first so a failed
// conversion never leaves a half-written profile behind.
func writeProfile(r io.Reader, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := convert.Convert(r, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing output file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("committing output file: %w", err)
	}
	logrus.Infof("wrote %s", path)
	return nil
}

func newRecordCmd() *cobra.Command {
	var (
		pkg       string
		bin       string
		frequency int
		output    string
		folded    bool
	)

	recordCmd := &cobra.Command{
		Use:   "record [flags]",
		Short: "Build, profile with perf record, and emit a profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			binary := bin
			if binary == "" {
				built, err := perfexec.Build(ctx, pkg, filepath.Join(os.TempDir(), "perf2pprof-target"))
				if err != nil {
					return err
				}
				defer os.Remove(built)
				binary = built
			}

			if err := perfexec.Record(ctx, perfexec.RecordOptions{
				Binary:    binary,
				Frequency: frequency,
				Output:    defaultPerfData,
			}); err != nil {
				return err
			}

			out, err := perfexec.Script(ctx, defaultPerfData)
			if err != nil {
				return err
			}

			if !folded {
				if output == "" {
					output = defaultPprofOutput
				}
				return writeProfile(bytes.NewReader(out), output)
			}

			parsed, err := perfscript.Parse(bytes.NewReader(out))
			if err != nil {
				return err
			}
			if parsed.DroppedFrames > 0 {
				logrus.Warnf("dropped %d unparsable frames", parsed.DroppedFrames)
			}
			if output == "" {
				output = defaultFoldedOutput
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			if err := report.WriteFolded(parsed, f); err != nil {
				return fmt.Errorf("writing folded stacks: %w", err)
			}
			logrus.Infof("wrote %s", output)
			return nil
		},
	}

	recordCmd.Flags().StringVar(&pkg, "pkg", ".", "Go package to build and profile")
	recordCmd.Flags().StringVar(&bin, "bin", "", "profile an already built binary instead of building")
	recordCmd.Flags().IntVar(&frequency, "frequency", perfexec.DefaultFrequency, "sampling frequency in Hz")
	recordCmd.Flags().StringVarP(&output, "output", "o", "", "output file name")
	recordCmd.Flags().BoolVar(&folded, "folded", false, "emit folded stacks for flamegraph tooling instead of pprof")
	return recordCmd
}

func newTopCmd() *cobra.Command {
	var (
		input      string
		scriptFile string
		topN       int
		leaf       bool
	)

	topCmd := &cobra.Command{
		Use:   "top [flags]",
		Short: "Print the functions appearing in the most samples",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, done, err := scriptReader(cmd, scriptFile, input)
			if err != nil {
				return err
			}
			defer done()

			parsed, err := perfscript.Parse(r)
			if err != nil {
				return err
			}

			var hotspots []report.Hotspot
			if leaf {
				hotspots = report.LeafHotspots(parsed, topN)
			} else {
				hotspots = report.Hotspots(parsed, topN)
			}
			for i, hs := range hotspots {
				fmt.Print(report.FormatHotspot(hs, i+1))
			}
			return nil
		},
	}

	topCmd.Flags().StringVarP(&input, "input", "i", defaultPerfData, "perf data file to analyze")
	topCmd.Flags().StringVar(&scriptFile, "script", "", "pre-recorded perf script text dump (skips running perf)")
	topCmd.Flags().IntVarP(&topN, "top", "n", 10, "number of entries to print")
	topCmd.Flags().BoolVar(&leaf, "leaf", false, "rank by leaf frames only")
	return topCmd
}
