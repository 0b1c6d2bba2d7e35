package perfscript

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Parse failures that callers may want to distinguish.
var (
	ErrNoDuration     = errors.New("no duration found (need at least two event timestamps)")
	ErrNoCapturedTime = errors.New("captured time not found in header")
	ErrNoFrequency    = errors.New("sampling frequency missing or zero")
)

var (
	// Event line: "<comm> <pid> <sec>.<usec>: ..."
	eventRe = regexp.MustCompile(`\S+\s+\d+\s+(\d+)\.(\d+)`)
	// Header line: "# event : { sample_freq } = 99 ..."
	freqRe = regexp.MustCompile(`sample_freq\s+}\s+=\s+(\d+)`)
)

// Parse reads a perf script dump produced with --header and returns the
// aggregated samples plus capture metadata.
//
// Header lines (starting with '#') are collected for metadata. Each sample
// block consists of one event line followed by frame lines of the form
// "<hex-address> <function> <module>", terminated by a blank line. Identical
// stacks are merged into a single sample with an incremented count.
func Parse(r io.Reader) (*Profile, error) {
	p := &Profile{
		Samples: make(map[string]*Sample),
	}

	var (
		header      []string
		stack       Stack
		isEventLine = true
		startUsec   uint64
		endUsec     uint64
	)

	flush := func() {
		isEventLine = true
		if len(stack) == 0 {
			return
		}
		k := stack.key()
		if s, ok := p.Samples[k]; ok {
			s.Count++
		} else {
			p.Samples[k] = &Sample{Stack: stack, Count: 1}
		}
		stack = nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			header = append(header, strings.TrimSpace(line))
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		if isEventLine {
			if caps := eventRe.FindStringSubmatch(line); caps != nil {
				sec, _ := strconv.ParseUint(caps[1], 10, 64)
				usec, _ := strconv.ParseUint(caps[2], 10, 64)
				ts := sec*1_000_000 + usec
				if len(p.Samples) == 0 {
					startUsec = ts
				} else {
					endUsec = ts
				}
			}
			isEventLine = false
			continue
		}
		frame, ok := parseFrame(line)
		if !ok {
			p.DroppedFrames++
			continue
		}
		stack = append(stack, frame)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading perf script output: %w", err)
	}
	// perf always ends the last block with a blank line, but tolerate
	// truncated input by treating EOF as a terminator too.
	flush()

	if endUsec == 0 {
		return nil, ErrNoDuration
	}
	p.Duration = time.Duration(endUsec-startUsec) * time.Microsecond

	capturedAt, freq, err := parseHeader(header)
	if err != nil {
		return nil, err
	}
	p.CapturedAt = capturedAt
	p.Frequency = freq

	return p, nil
}

// parseFrame splits a stack line "<hex-address> <function> <module>" into a
// frame. The address is the leading token; the module is the last token;
// everything in between is the function name, which may itself contain
// spaces. Returns ok=false when the address is not valid hex.
func parseFrame(line string) (Frame, bool) {
	addrTok, rest, found := strings.Cut(line, " ")
	addr, err := strconv.ParseUint(addrTok, 16, 64)
	if err != nil {
		return Frame{}, false
	}
	if !found {
		return Frame{Address: addr}, true
	}
	rest = strings.TrimSpace(rest)
	frame := Frame{Address: addr}
	if idx := strings.LastIndexByte(rest, ' '); idx >= 0 {
		frame.Function = rest[:idx]
		frame.Module = rest[idx+1:]
	} else {
		frame.Function = rest
	}
	return frame, true
}

// parseHeader extracts the capture time and the sampling frequency from the
// collected header lines, in any order. The capture time line looks like
// "# captured on    : Thu Mar 10 10:45:19 2022" and is split at the first
// colon; the remainder is a ctime-style date in the local time zone.
func parseHeader(header []string) (time.Time, uint64, error) {
	var (
		capturedAt time.Time
		freq       uint64
	)
	for _, h := range header {
		if strings.Contains(h, "captured on") {
			_, rest, found := strings.Cut(h, ":")
			if !found {
				continue
			}
			if t, err := time.ParseInLocation(time.ANSIC, strings.TrimSpace(rest), time.Local); err == nil {
				capturedAt = t
			}
		} else if caps := freqRe.FindStringSubmatch(h); caps != nil {
			v, err := strconv.ParseUint(caps[1], 10, 64)
			if err != nil {
				return time.Time{}, 0, fmt.Errorf("parsing sample_freq %q: %w", caps[1], err)
			}
			freq = v
		}
	}
	if capturedAt.IsZero() {
		return time.Time{}, 0, ErrNoCapturedTime
	}
	if freq == 0 {
		return time.Time{}, 0, ErrNoFrequency
	}
	return capturedAt, freq, nil
}
