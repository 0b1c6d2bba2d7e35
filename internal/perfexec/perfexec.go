// Package perfexec spawns the external processes the converter depends on:
// perf record, perf script, and go build for the target binary.
package perfexec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/sirupsen/logrus"
)

// DefaultFrequency is the sampling rate used when the caller does not
// specify one.
const DefaultFrequency = 99

// RecordOptions configures a perf record run.
type RecordOptions struct {
	Binary    string // path of the binary to profile
	Frequency int    // sampling frequency in Hz; 0 means DefaultFrequency
	Output    string // perf.data output path
}

func recordArgs(opts RecordOptions) []string {
	freq := opts.Frequency
	if freq <= 0 {
		freq = DefaultFrequency
	}
	return []string{
		"record",
		"--call-graph", "dwarf",
		"-g",
		"-F", strconv.Itoa(freq),
		"-o", opts.Output,
		opts.Binary,
	}
}

func scriptArgs(input string) []string {
	return []string{"script", "--header", "-i", input}
}

// Record profiles opts.Binary with perf record, writing raw sample data to
// opts.Output. The profiled program's stdout and stderr pass through.
func Record(ctx context.Context, opts RecordOptions) error {
	args := recordArgs(opts)
	logrus.Debugf("running perf %v", args)

	cmd := exec.CommandContext(ctx, "perf", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("perf record: %w", err)
	}
	return nil
}

// Script runs perf script --header over a recorded data file and returns
// its textual output. On failure perf's stderr is included in the error.
func Script(ctx context.Context, input string) ([]byte, error) {
	args := scriptArgs(input)
	logrus.Debugf("running perf %v", args)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "perf", args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("perf script: %w: %s", err, stderr.String())
	}
	return out, nil
}

// Build compiles the Go package at pkg into the binary out and returns the
// binary path. This is the capture-time analog of pointing perf at an
// already built binary.
func Build(ctx context.Context, pkg, out string) (string, error) {
	logrus.Debugf("building %s -> %s", pkg, out)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "go", "build", "-o", out, pkg)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("go build %s: %w: %s", pkg, err, stderr.String())
	}
	return out, nil
}
