/*
Copyright (C) 2026 Waxpress

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package liveaudio

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/waxpress/waxradio/internal/queue"
	"github.com/waxpress/waxradio/internal/source"
	"github.com/waxpress/waxradio/internal/transcoder"
)

// TrackPreparer fetches a queued stream's audio and probes its real duration.
type TrackPreparer struct {
	fetcher *source.Fetcher
	prober  *transcoder.Prober
	logger  zerolog.Logger
}

// NewTrackPreparer wires the fetcher and prober into a Preparer.
func NewTrackPreparer(fetcher *source.Fetcher, prober *transcoder.Prober, logger zerolog.Logger) *TrackPreparer {
	return &TrackPreparer{fetcher: fetcher, prober: prober, logger: logger}
}

// Prepare downloads stream.URL and probes the decoded duration. The probe
// result wins over metadata; a mis-reported duration would corrupt crossfade
// timing.
func (tp *TrackPreparer) Prepare(ctx context.Context, stream queue.AudioStream) (PreparedSource, error) {
	fetched, err := tp.fetcher.Fetch(ctx, stream.URL)
	if err != nil {
		return PreparedSource{}, fmt.Errorf("fetch source: %w", err)
	}

	duration, err := tp.prober.Duration(ctx, fetched.Path)
	if err != nil {
		fetched.Cleanup()
		return PreparedSource{}, fmt.Errorf("probe duration: %w", err)
	}

	if stream.Duration > 0 && !closeEnough(stream.Duration, duration) {
		tp.logger.Debug().
			Str("stream_id", stream.ID).
			Dur("claimed", stream.Duration).
			Dur("probed", duration).
			Msg("metadata duration overridden by probe")
	}

	return PreparedSource{Path: fetched.Path, Duration: duration, cleanup: fetched.Cleanup}, nil
}

func closeEnough(a, b time.Duration) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < time.Second
}
