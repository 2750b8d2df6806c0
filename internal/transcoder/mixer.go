/*
Copyright (C) 2026 Waxpress

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package transcoder

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

// Mixer renders playout segments with ffmpeg. GStreamer drives the long
// running encoder; per-segment gain envelopes and summation mixing are a
// better fit for ffmpeg's filter graph.
type Mixer struct {
	ffmpegBin string
	logger    zerolog.Logger
}

// NewMixer creates a segment mixer.
func NewMixer(ffmpegBin string, logger zerolog.Logger) *Mixer {
	return &Mixer{ffmpegBin: ffmpegBin, logger: logger.With().Str("component", "mixer").Logger()}
}

// CrossfadeSpec describes one crossfade render. Durations are the probed
// durations of the two inputs; Window is the overlap length. ReserveTail
// holds back that much of the incoming track's end so the next transition
// can replay it under its own fade.
type CrossfadeSpec struct {
	CurrentPath     string
	NextPath        string
	CurrentDuration time.Duration
	NextDuration    time.Duration
	Window          time.Duration
	ReserveTail     time.Duration
	CurrentVolume   float64
	NextVolume      float64
	Normalize       bool
}

// RenderCrossfade mixes the tail of current into the head of next and writes
// the result to outPath. Only the outgoing track's final window is read (the
// body before it has already been spooled), faded to zero and summed with the
// incoming track's faded-in head, so the segment covers the overlap window
// plus the incoming track's tail.
func (m *Mixer) RenderCrossfade(ctx context.Context, spec CrossfadeSpec, outPath string) error {
	if spec.Window <= 0 {
		return fmt.Errorf("crossfade window must be positive")
	}

	fadeStart := spec.CurrentDuration - spec.Window
	if fadeStart < 0 {
		fadeStart = 0
	}

	filter := fmt.Sprintf(
		"[0:a]volume=%.3f,afade=t=out:st=0:d=%.3f[cur];[1:a]volume=%.3f,afade=t=in:st=0:d=%.3f[nxt];[cur][nxt]amix=inputs=2:duration=longest:normalize=0[mix]",
		volumeOrFull(spec.CurrentVolume),
		spec.Window.Seconds(),
		volumeOrFull(spec.NextVolume),
		spec.Window.Seconds(),
	)
	if spec.Normalize {
		filter += ";[mix]loudnorm=I=-14:TP=-1.5[out]"
	} else {
		filter += ";[mix]anull[out]"
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", fmt.Sprintf("%.3f", fadeStart.Seconds()),
		"-i", spec.CurrentPath,
		"-i", spec.NextPath,
		"-filter_complex", filter,
		"-map", "[out]",
	}
	if keep := spec.NextDuration - spec.ReserveTail; spec.ReserveTail > 0 && keep > 0 {
		args = append(args, "-t", fmt.Sprintf("%.3f", keep.Seconds()))
	}
	args = append(args, "-f", "mp3", "-y", outPath)

	m.logger.Debug().
		Str("current", spec.CurrentPath).
		Str("next", spec.NextPath).
		Dur("window", spec.Window).
		Msg("rendering crossfade segment")

	cmd := exec.CommandContext(ctx, m.ffmpegBin, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("crossfade render failed: %w: %s", err, string(output))
	}
	return nil
}

// RenderDirect re-encodes a single source with its gain applied, for hard
// cuts and for the very first track of a session. A positive reserveTail
// trims that much off the end, leaving it for the following crossfade.
func (m *Mixer) RenderDirect(ctx context.Context, spec DirectSpec, outPath string) error {
	filter := fmt.Sprintf("volume=%.3f", volumeOrFull(spec.Volume))
	if spec.Normalize {
		filter += ",loudnorm=I=-14:TP=-1.5"
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", spec.SourcePath,
		"-af", filter,
	}
	if keep := spec.Duration - spec.ReserveTail; spec.ReserveTail > 0 && keep > 0 {
		args = append(args, "-t", fmt.Sprintf("%.3f", keep.Seconds()))
	}
	args = append(args, "-f", "mp3", "-y", outPath)

	cmd := exec.CommandContext(ctx, m.ffmpegBin, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("segment render failed: %w: %s", err, string(output))
	}
	return nil
}

// DirectSpec describes one straight re-encode.
type DirectSpec struct {
	SourcePath  string
	Duration    time.Duration
	Volume      float64
	ReserveTail time.Duration
	Normalize   bool
}

func volumeOrFull(v float64) float64 {
	if v <= 0 {
		return 1.0
	}
	return v
}
