/*
Copyright (C) 2026 Waxpress

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package liveaudio

import "time"

// Window describes the timing of one crossfade transition between two
// adjacent tracks on the continuous output timeline.
type Window struct {
	// FadeStart is the offset within the outgoing track where its gain
	// begins ramping to zero.
	FadeStart time.Duration
	// Length is the effective overlap, the configured crossfade duration
	// clamped so neither track is shorter than the fade applied to it.
	Length time.Duration
	// MixedLength is the length of the summed segment. The outgoing
	// track's duration governs it; the incoming track only contributes
	// its head under the fade.
	MixedLength time.Duration
	// TailLength is what remains of the incoming track after the overlap,
	// played alone once the mixed segment ends.
	TailLength time.Duration
}

// ComputeWindow derives the crossfade window for an outgoing track of
// duration current followed by an incoming track of duration next.
func ComputeWindow(current, next, crossfade time.Duration) Window {
	c := crossfade
	if c < 0 {
		c = 0
	}
	if c > current {
		c = current
	}
	if c > next {
		c = next
	}
	return Window{
		FadeStart:   current - c,
		Length:      c,
		MixedLength: current,
		TailLength:  next - c,
	}
}
