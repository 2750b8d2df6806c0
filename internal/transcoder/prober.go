/*
Copyright (C) 2026 Waxpress

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package transcoder

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Prober determines the true duration of decoded media. Probing authority
// overrides any caller-supplied duration: a mis-reported duration would
// corrupt crossfade timing.
type Prober struct {
	ffprobeBin string
	logger     zerolog.Logger
}

// NewProber creates a media prober.
func NewProber(ffprobeBin string, logger zerolog.Logger) *Prober {
	return &Prober{
		ffprobeBin: ffprobeBin,
		logger:     logger.With().Str("component", "prober").Logger(),
	}
}

// gst-discoverer prints fractional seconds with variable precision (often
// nanoseconds, 9 digits). Example: "Duration: 0:03:12.345000000".
var durationRegex = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)(?:\.(\d+))?`)

// Duration probes the decoded duration of filePath, trying gst-discoverer
// first and falling back to ffprobe.
func (p *Prober) Duration(ctx context.Context, filePath string) (time.Duration, error) {
	if dur, err := p.runDiscoverer(ctx, filePath); err == nil {
		return dur, nil
	} else {
		p.logger.Debug().Err(err).Str("file", filePath).Msg("discoverer failed, trying ffprobe")
	}
	return p.runFFprobe(ctx, filePath)
}

func (p *Prober) runDiscoverer(ctx context.Context, filePath string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, "gst-discoverer-1.0", filePath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("gst-discoverer failed: %w", err)
	}
	dur, ok := parseDiscovererDuration(string(output))
	if !ok {
		return 0, fmt.Errorf("no duration in discoverer output")
	}
	return dur, nil
}

func parseDiscovererDuration(output string) (time.Duration, bool) {
	matches := durationRegex.FindStringSubmatch(output)
	if matches == nil {
		return 0, false
	}
	hours, _ := strconv.Atoi(matches[1])
	minutes, _ := strconv.Atoi(matches[2])
	seconds, _ := strconv.Atoi(matches[3])
	frac := ""
	if len(matches) >= 5 {
		frac = matches[4]
	}
	ms := fracToMilliseconds(frac)

	total := int64(hours)*3600000 + int64(minutes)*60000 + int64(seconds)*1000 + ms
	return time.Duration(total) * time.Millisecond, true
}

func fracToMilliseconds(frac string) int64 {
	// frac is the digits after the decimal point in seconds, variable
	// precision (e.g. "12", "004", "345000000").
	if frac == "" {
		return 0
	}
	fracInt, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || fracInt < 0 {
		return 0
	}
	denom := int64(1)
	for i := 0; i < len(frac); i++ {
		denom *= 10
		if denom <= 0 {
			return 0
		}
	}
	return (fracInt * 1000) / denom
}

type ffprobeFormat struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (p *Prober) runFFprobe(ctx context.Context, filePath string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, p.ffprobeBin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		filePath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var parsed ffprobeFormat
	if err := json.Unmarshal(output, &parsed); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	seconds, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("invalid ffprobe duration %q", parsed.Format.Duration)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
